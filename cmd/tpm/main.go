// Package main is the entry point for the tpm CLI.
package main

import (
	"os"

	"github.com/randalmurphal/tpm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
