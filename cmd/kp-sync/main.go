package main

import (
	"os"

	"github.com/jackchen1941/knowledge-platform-sub000/cmd/kp-sync/commands"
)

var version = "dev"

func main() {
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
