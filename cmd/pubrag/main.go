// Package main provides the entry point for the pubrag CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/pubrag/cmd/pubrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
