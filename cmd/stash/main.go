// Command stash stores key-value pairs in SQLite with optional encryption of
// secret values.
package main

import (
	"os"
)

var version = "dev" // this will be set by the linker

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The error is already printed by Cobra on failure.
		os.Exit(1)
	}
}
