// Command synclogd runs the sync log server and its local tooling.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/synclog/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
