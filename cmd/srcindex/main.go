// Package main provides the entry point for the srcindex CLI.
package main

import (
	"os"

	"github.com/dkallur/srcindex/cmd/srcindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
