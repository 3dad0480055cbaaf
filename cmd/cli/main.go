package main

import (
	"fmt"
	"os"

	"github.com/pmak99/trading-desk-public-sub000/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
