package main

import (
	"os"

	"github.com/dshills/prwatch/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
