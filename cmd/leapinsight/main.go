// Package main provides the CLI for the LeapInsight loan portfolio assistant.
package main

import (
	"os"

	"github.com/leapstack-labs/leapinsight/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
