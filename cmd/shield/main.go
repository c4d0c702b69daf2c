// Package main is the entry point for the shield CLI.
//
// shield launches Firefox with a throwaway profile that has a study add-on
// installed, and optionally runs the add-on's tests against it. All
// functionality lives in the internal/cli package.
//
// A .env file in the working directory, if present, is loaded before the
// command runs so SHIELD_* settings can be kept next to the add-on.
package main

import (
	"github.com/joho/godotenv"

	"github.com/shinji-kodama/shield/internal/cli"
)

// version is set at build time via ldflags. When empty the CLI reports
// its built-in version.
var version = ""

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	if version != "" {
		cli.Version = version
	}
	cli.Execute()
}
