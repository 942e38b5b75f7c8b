package main

import (
	"os"

	"github.com/mkalwtb/magicnorthseaweed/cmd/surfcast/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
