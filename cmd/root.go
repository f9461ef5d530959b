// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gridcap",
	Short: "gridcap - line-rate packet ingestion engine with columnar output",
	Long: `gridcap captures batches of raw frames from a receive queue, parses
Ethernet/IPv4/TCP|UDP headers across a group of parallel lanes, and hands
each batch downstream as a columnar record: packed MAC/IP integers, ports,
flags, timestamps, and a gathered variable-length payload column.

The traffic type (tcp or udp) is fixed per session so the hot path never
branches on protocol per packet.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/gridcap/config.yml",
		"config file path")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(validateCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
