// Package main provides the entry point for the blackvault CLI.
package main

import (
	"os"

	"github.com/blackvault/blackvault/cmd/blackvault/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
