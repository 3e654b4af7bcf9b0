package main

import (
	"os"

	"github.com/MikhailFrushkin/Lenanad-site/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.RootCmd(version).Execute(); err != nil {
		os.Exit(1)
	}
}
