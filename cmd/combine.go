package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/pipeline"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/store"
)

var combineOpts runFlags

// combineCmd runs the raw combiner stage on its own.
var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Merge the two raw provider exports into the combined export",
	Long: `The combine command drops rows whose timestamp is a null sentinel from both
raw provider exports, merges them and writes the combined export newest first.
An existing combined export is kept unless --force is given.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyRunFlags(cfg, combineOpts); err != nil {
			return err
		}
		logger, closeLog, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		report, res, err := executeReport(cmd.Context(), cfg, combineOpts, logger, pipeline.StageCombine)
		if err != nil {
			return err
		}

		sr, _ := res.Stage(pipeline.StageCombine)
		out := cmd.OutOrStdout()
		if sr.Status == store.StageCached {
			fmt.Fprintf(out, "Combined export %s already exists (use --force to rebuild)\n", sr.Output)
			return nil
		}
		fmt.Fprintf(out, "Combined %d rows into %s (%d from first export, %d from second, %d null timestamps dropped)\n",
			report.Combined.Rows, sr.Output, report.Combined.FromEach[0], report.Combined.FromEach[1], report.Combined.Dropped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(combineCmd)
	addRunFlags(combineCmd, &combineOpts, false)
}
