package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gridcap/gridcap/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration, run the same validation the capture command
uses, and print the resolved values with defaults applied.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("invalid configuration", err)
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			exitWithError("failed to render config", err)
		}
		fmt.Printf("config %s is valid:\n", configFile)
		os.Stdout.Write(out)
	},
}
