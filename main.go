package main

import (
	"os"

	"github.com/bimmerbailey/streamchat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
