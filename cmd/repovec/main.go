// Package main provides the entry point for the repovec CLI.
package main

import (
	"os"

	"github.com/repovec/repovec/cmd/repovec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
