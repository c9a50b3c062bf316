// Command grab-server exposes the grab engine as an async HTTP
// operation queue for the out-of-scope recursive multi-URL driver.
package main

import (
	"os"

	cliruntime "github.com/tomasbasham/cli-runtime"

	"github.com/tomasbasham/grab-engine/internal/cmd"
)

func main() {
	command := cmd.NewServeCommand(cmd.NewServeOptions())
	if code := cliruntime.Run(command); code != 0 {
		os.Exit(code)
	}
}
