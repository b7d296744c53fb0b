package main

import (
	"os"

	"github.com/dshills/triage/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
