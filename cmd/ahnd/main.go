package main

import (
	"os"

	"github.com/sstanfield/ahnd/cmd"
)

func main() {
	if err := cmd.CmdAhnd.Execute(); err != nil {
		os.Exit(1)
	}
}
