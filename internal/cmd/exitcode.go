package cmd

import (
	"errors"

	"github.com/tomasbasham/grab-engine/internal/grab/devtools"
)

// ExitCode maps a grab-single run's terminal error to the process exit
// code SPEC_FULL.md §6 specifies: 0 success, 1 generic failure, 2
// browser crash, 3 navigate error.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, devtools.ErrCrashed):
		return 2
	case errors.Is(err, devtools.ErrNavigate):
		return 3
	default:
		return 1
	}
}
