// =============================================================================
// talktime - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   talktime validate [--inputs=false]
//
// Checks the configuration and, unless --inputs=false, the headers of every
// input file that is present. Nothing is written. The command fails when an
// error-level problem is found; warnings are printed only.
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/validation"
)

var validateInputs bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and input headers without writing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		result := validation.ValidateConfig(cfg)
		if validateInputs && result.IsValid {
			result.Merge(validation.ValidateInputs(cfg))
		}

		out := cmd.OutOrStdout()
		fmt.Fprint(out, validation.FormatErrors(result.Errors))
		if len(result.Errors) == 0 {
			fmt.Fprintln(out)
		}
		if !result.IsValid {
			return fmt.Errorf("validation failed with %d error(s)", result.ErrorCount)
		}
		fmt.Fprintf(out, "Configuration is valid (%d warning(s)).\n", result.WarningCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateInputs, "inputs", true, "Also check the headers of present input files")
}
