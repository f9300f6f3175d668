package main

import (
	"os"

	"github.com/calembot/calembot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
