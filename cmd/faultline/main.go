// Package main is the entry point for the faultline CLI.
package main

import (
	"os"

	"github.com/faultline/faultline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
