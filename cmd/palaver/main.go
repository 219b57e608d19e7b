package main

import (
	"os"

	"github.com/palaver-dev/palaver/internal/cmd"
)

func main() {
	// Errors are printed by the printer package with color formatting
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
