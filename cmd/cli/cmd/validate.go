// Package cmd - validate command
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"quote-engine/core/document"
	"quote-engine/core/feature"
	"quote-engine/core/projection"
	"quote-engine/core/quote"
)

var (
	validateConfigFile  string
	validateInputsFile  string
	validateOutputsFile string
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate estimation documents without evaluating them",
	Long: `Check configuration, inputs, and outputs documents against the structural
rules and report the first violation with its field path. No model runs.

Examples:
  quote-engine validate --config estimator.json
  quote-engine validate --config estimator.yaml --inputs inputs.yaml --outputs outputs.yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "config", "c", "", "estimation configuration document")
	validateCmd.Flags().StringVarP(&validateInputsFile, "inputs", "i", "", "resolved process inputs document")
	validateCmd.Flags().StringVarP(&validateOutputsFile, "outputs", "o", "", "outputs document")
}

func runValidate(cmd *cobra.Command, args []string) error {
	validated := 0

	if validateConfigFile != "" {
		doc, err := document.Load(validateConfigFile)
		if err != nil {
			return err
		}
		if _, err := quote.ParseConfig(doc); err != nil {
			return err
		}
		fmt.Printf("%s: valid configuration\n", validateConfigFile)
		validated++
	}
	if validateInputsFile != "" {
		doc, err := document.Load(validateInputsFile)
		if err != nil {
			return err
		}
		if _, err := feature.Resolve(doc); err != nil {
			return err
		}
		fmt.Printf("%s: valid inputs\n", validateInputsFile)
		validated++
	}
	if validateOutputsFile != "" {
		doc, err := document.Load(validateOutputsFile)
		if err != nil {
			return err
		}
		if _, err := projection.ParseOutputs(doc); err != nil {
			return err
		}
		fmt.Printf("%s: valid outputs\n", validateOutputsFile)
		validated++
	}

	if validated == 0 {
		return fmt.Errorf("nothing to validate: supply --config, --inputs, or --outputs")
	}
	return nil
}
