package main

import (
	"os"

	"github.com/custodia-labs/dingsync/internal/adapters/driving/cli"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(); err != nil {
		return 1
	}
	return 0
}
