package main

import (
	"os"

	"github.com/tulumbak/courierhook/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
