package main

import (
	"os"

	"github.com/crashview/crashview/cmd/crashview/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
