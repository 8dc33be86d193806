// Package main is the entry point for the manualqa CLI application.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/kwhuang/manualqa/internal/cli"
)

// Version information (set at build time via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Local .env files carry provider credentials in development.
	_ = godotenv.Load()

	cli.SetVersionInfo(version, commit, date)

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
