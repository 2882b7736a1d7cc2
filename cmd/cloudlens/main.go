package main

import (
	"os"

	"github.com/catherinevee/cloudlens/cmd/cloudlens/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
