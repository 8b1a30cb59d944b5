// Command sortie replays attack scenarios as security telemetry into an
// HTTP event collector.
//
// Usage:
//
//	sortie scenarios [--search text]
//	sortie timeline <scenario> [--speed fast|realtime]
//	sortie run <scenario> [flags]
package main

import (
	"errors"
	"fmt"
	"os"

	"sortie/cmd/sortie/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		var exit *cmd.CodeError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cmd.ExitError)
	}
}
