package main

import (
	"os"

	"github.com/c0deZ3R0/go-board-kit/cmd/boardkit/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
