// Command bookshelf runs the personal library and its Kindle delivery worker.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/bookshelf/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// ExitErrors were already reported in the requested output format.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
