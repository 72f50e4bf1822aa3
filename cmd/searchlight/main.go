// Package main is the entry point for the searchlight binary.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/searchlight/internal/adapters/driving/cli"
)

// version is set via ldflags during build.
var version = "dev"

func main() {
	// Optional .env in the working directory; everything else comes from
	// the config file and SEARCHLIGHT_* variables.
	_ = godotenv.Load()

	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
