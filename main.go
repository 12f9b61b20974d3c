// ABOUTME: Entry point for the codecbridge command
// ABOUTME: Builds the command tree and exits non-zero on failure
package main

import (
	"fmt"
	"os"

	"github.com/Resonate-Protocol/codecbridge/internal/cli"
)

func main() {
	if err := cli.Execute(cli.NewRootCommand()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
