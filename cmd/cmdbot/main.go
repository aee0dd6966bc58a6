// Package main provides the entry point for the cmdbot host.
package main

import (
	"fmt"
	"os"

	"github.com/Hweary/cmdClient/cmd/cmdbot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
