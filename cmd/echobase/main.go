package main

import (
	"os"

	"github.com/tkersh/echobase-sub003/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
