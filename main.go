package main

import (
	"os"

	"github.com/duyet/duyetbot-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
