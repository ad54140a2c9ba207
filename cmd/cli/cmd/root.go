// Package cmd provides the CLI commands for quote-engine.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quote-engine/internal/config"
	"quote-engine/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "quote-engine",
	Short: "Compute cost quotes for computational process runs",
	Long: `quote-engine turns a configuration of rates, constants, and predictive
models plus a set of resolved process inputs into a monetary quote with a
per-category breakdown, and can forecast output characteristics for
workflow chaining.

Examples:
  quote-engine estimate --config estimator.json --inputs inputs.json
  quote-engine estimate --config estimator.yaml --inputs inputs.yaml --outputs outputs.yaml
  quote-engine validate --config estimator.json`,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "app-config", "", "application config file (JSON or HCL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Set(cfg)
	}

	cfg := config.Get()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("quote-engine version 0.1.0")
	},
}
