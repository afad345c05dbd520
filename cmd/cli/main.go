package main

import (
	"os"

	"github.com/dmitrijs2005/certkeeper/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
