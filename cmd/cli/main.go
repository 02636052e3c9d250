package main

import (
	"os"

	"github.com/hamed0406/serverwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
