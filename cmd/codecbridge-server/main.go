// ABOUTME: Entry point for the standalone stream server
// ABOUTME: Serves one input to websocket listeners with mDNS advertisement
package main

import (
	"fmt"
	"os"

	"github.com/Resonate-Protocol/codecbridge/internal/cli"
)

func main() {
	if err := cli.Execute(cli.NewServerCommand()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
