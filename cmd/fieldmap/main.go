// Package main provides the entry point for the fieldmap CLI tool.
package main

import (
	"github.com/finsheet/fieldmap/cmd/fieldmap/cmd"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
