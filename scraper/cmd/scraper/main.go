package main

import (
	"os"
	_ "time/tzdata"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
