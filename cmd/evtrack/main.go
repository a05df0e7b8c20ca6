// Command evtrack records, persists and delivers analytics events.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/evtrack/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
