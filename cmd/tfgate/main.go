package main

import (
	"os"

	"github.com/tfgate/tfgate/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
