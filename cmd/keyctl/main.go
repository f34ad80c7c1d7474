package main

import (
	"fmt"
	"os"

	"keyguard/cmd/keyctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
