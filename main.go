package main

import (
	"os"

	"github.com/spigell/recruitbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
