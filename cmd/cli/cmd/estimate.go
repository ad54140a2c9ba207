// Package cmd - estimate command
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"quote-engine/core/document"
	"quote-engine/core/engine"
	"quote-engine/internal/config"
)

var (
	configFile   string
	inputsFile   string
	outputsFile  string
	outputFormat string
)

// estimateCmd represents the estimate command
var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Compute a quote from a configuration and resolved inputs",
	Long: `Evaluate an estimation configuration against resolved process inputs and
print the total with a per-category breakdown.

Documents may be JSON or YAML. Supplying an outputs document additionally
projects output characteristics for workflow chaining.

Examples:
  quote-engine estimate --config estimator.json --inputs inputs.json
  quote-engine estimate --config estimator.yaml --inputs inputs.yaml --format json
  quote-engine estimate --config estimator.json --inputs inputs.json --outputs outputs.json`,
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().StringVarP(&configFile, "config", "c", "", "estimation configuration document (required)")
	estimateCmd.Flags().StringVarP(&inputsFile, "inputs", "i", "", "resolved process inputs document")
	estimateCmd.Flags().StringVarP(&outputsFile, "outputs", "o", "", "outputs document for projection")
	estimateCmd.Flags().StringVarP(&outputFormat, "format", "f", "cli", "output format (cli, json)")
	_ = estimateCmd.MarkFlagRequired("config")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	appCfg := config.Get()

	eng, err := engine.New(engine.Config{
		Currency:       appCfg.Currency,
		ModelCacheSize: appCfg.ModelCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer eng.Close()

	req := &engine.Request{Inputs: map[string]interface{}{}}
	if req.Config, err = document.Load(configFile); err != nil {
		return err
	}
	if inputsFile != "" {
		if req.Inputs, err = document.Load(inputsFile); err != nil {
			return err
		}
	}
	if outputsFile != "" {
		if req.Outputs, err = document.Load(outputsFile); err != nil {
			return err
		}
	}

	result, err := eng.Estimate(ctx, req)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "cli":
		printResult(result)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
}

func printResult(result *engine.Result) {
	categories := make([]string, 0, len(result.Breakdown))
	for name := range result.Breakdown {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	fmt.Println("Cost breakdown:")
	for _, name := range categories {
		fmt.Printf("  %-20s %12.4f %s  (estimate %.4f)\n",
			name, result.Breakdown[name], result.Currency, result.Estimates[name])
	}
	fmt.Printf("Total: %.2f %s\n", result.Total, result.Currency)

	for _, warning := range result.Warnings {
		fmt.Printf("Warning: %s\n", warning)
	}

	if len(result.Outputs) > 0 {
		ids := make([]string, 0, len(result.Outputs))
		for id := range result.Outputs {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Println("Projected outputs:")
		for _, id := range ids {
			out := result.Outputs[id]
			if out.Complex {
				fmt.Printf("  %-20s size=%.4f weight=%.4f length=%.4f\n", id, out.Size, out.Weight, out.Length)
			} else {
				fmt.Printf("  %-20s value=%.4f weight=%.4f length=%.4f\n", id, out.Value, out.Weight, out.Length)
			}
		}
	}
}
