// Command grab-single archives one URL into a stream of archival
// events by driving a single headless browser tab to completion,
// mirrored on crocoite's crocoite-single entry point (SPEC_FULL.md
// §6). Its exit codes are load-bearing: 0 success, 1 generic failure,
// 2 browser crash, 3 navigate error.
package main

import (
	"fmt"
	"os"

	"github.com/tomasbasham/cli-runtime/iooption"

	"github.com/tomasbasham/grab-engine/internal/cmd"
)

func main() {
	streams := iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
	command := cmd.NewSingleCommand(cmd.NewSingleOptions(streams))

	err := command.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cmd.ExitCode(err))
}
