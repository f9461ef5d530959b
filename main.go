// Package main is the entry point for the gridcap capture engine.
package main

import (
	"fmt"
	"os"

	"github.com/gridcap/gridcap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
