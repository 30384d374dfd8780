package main

import (
	"os"

	"github.com/adalundhe/wikisearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
