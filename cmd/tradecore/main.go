package main

import (
	"os"

	"github.com/hampro/tradecore/cmd/tradecore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
