// Package main is the entry point for the haakeem-agent room worker.
//
// Usage:
//
//	haakeem-agent [flags] <command>
//
// Commands:
//
//	run        - Run the room worker (connect, start the default agent)
//	variants   - List the available agent variants
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/binfin8/haakeem-agent/cmd/haakeem-agent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
