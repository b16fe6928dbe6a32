package main

import (
	"os"

	"github.com/hubenschmidt/go-retrieve/cli"
)

// Set by ldflags.
var version = "dev"

func main() {
	cmd := cli.NewRootCommand(version)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
