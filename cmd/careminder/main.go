// Package main implements the careminder command, which serves the reminder
// scheduling API and runs the dispatcher, and offers maintenance commands for
// migrations, offline note submission and token minting.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
