package main

import (
	"os"

	"github.com/windmill-io/windmill/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
