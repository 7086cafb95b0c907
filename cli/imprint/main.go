package main

import (
	"os"

	imprintcmder "github.com/soulprintco/imprint/cmd/imprint"
)

func main() {
	cmd := imprintcmder.NewImprintCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
