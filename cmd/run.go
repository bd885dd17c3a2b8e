// =============================================================================
// talktime - Run Command
// =============================================================================
//
// This file defines the 'run' command, which executes the whole report
// pipeline, and the helpers the 'combine' and 'watch' commands share with it.
//
// COMMAND USAGE:
//   talktime run [flags]
//
// FLAGS:
//   --force          : Regenerate cacheable outputs (same as --cache-policy always)
//   --cache-policy   : exists, fingerprint or always
//   --start / --end  : Override the reporting window
//   --xlsx           : Also write the ledger as an .xlsx workbook
//   --quiet          : Do not print the ledger table
//
// PROCESSING PIPELINE:
//   1. Load and validate the configuration
//   2. Combine the raw provider exports (cacheable)
//   3. Aggregate the PBX export and the combined provider export
//   4. Reconcile both summaries into the ledger
//   5. Optionally export the ledger to XLSX and archive it
//   6. Print the ledger
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/pipeline"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/validation"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// runFlags are shared by run, combine and watch.
type runFlags struct {
	force       bool
	cachePolicy string
	start       string
	end         string
	xlsx        bool
	quiet       bool
}

var runOpts runFlags

// =============================================================================
// RUN COMMAND DEFINITION
// =============================================================================

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the talk-time ledger",
	Long: `The run command combines the two raw provider exports, aggregates the PBX
export and the combined provider export over the reporting window, and
reconciles both summaries into the ledger:

  <prefix>_tanggal_<DD> <HH_MM_SS>.csv

named after the window start. The combined export is reused when it already
exists unless --force or another cache policy says otherwise.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runReport(ctx, cmd, runOpts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd, &runOpts, true)
}

// addRunFlags registers the pipeline flags. Output-only flags are skipped for
// commands that never reach the ledger.
func addRunFlags(cmd *cobra.Command, f *runFlags, ledger bool) {
	cmd.Flags().BoolVar(&f.force, "force", false, "Regenerate cacheable outputs even if they exist")
	cmd.Flags().StringVar(&f.cachePolicy, "cache-policy", "", "Cache policy: exists, fingerprint or always (default from config)")
	cmd.Flags().StringVar(&f.start, "start", "", "Window start, YYYY-MM-DD HH:MM:SS (default from config)")
	cmd.Flags().StringVar(&f.end, "end", "", "Window end, YYYY-MM-DD HH:MM:SS (default from config)")
	if ledger {
		cmd.Flags().BoolVar(&f.xlsx, "xlsx", false, "Also write the ledger as an .xlsx workbook")
		cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print the ledger table")
	}
}

// =============================================================================
// PIPELINE EXECUTION
// =============================================================================

// applyRunFlags folds command-line overrides into cfg and validates it.
func applyRunFlags(cfg *config.MainConfig, f runFlags) error {
	if f.start != "" {
		cfg.Window.Start = f.start
	}
	if f.end != "" {
		cfg.Window.End = f.end
	}
	if f.cachePolicy != "" {
		cfg.CachePolicy = f.cachePolicy
	}
	if f.force {
		cfg.CachePolicy = config.CacheAlways
	}

	result := validation.ValidateConfig(cfg)
	return result.Err()
}

// executeReport builds the report for cfg and runs it. only restricts the
// stages; empty means all.
func executeReport(ctx context.Context, cfg *config.MainConfig, f runFlags, logger *slog.Logger, only ...string) (*pipeline.Report, *pipeline.Result, error) {
	report, err := pipeline.Build(cfg, pipeline.BuildOptions{XLSX: f.xlsx})
	if err != nil {
		return nil, nil, err
	}
	if err := report.Only(only...); err != nil {
		return nil, nil, err
	}

	coord := &pipeline.Coordinator{Policy: cfg.CachePolicy, Logger: logger}
	history, err := openHistory(cfg)
	if err != nil {
		return nil, nil, err
	}
	if history != nil {
		defer history.Close()
		coord.History = history
	}

	res, err := report.Execute(ctx, coord)
	return report, res, err
}

// runReport is the body of the run command.
func runReport(ctx context.Context, cmd *cobra.Command, f runFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg, f); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	report, _, err := executeReport(ctx, cfg, f, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !f.quiet {
		printLedger(out, report.Ledger)
	}
	fmt.Fprintf(out, "Ledger written to %s\n", report.LedgerPath)
	if report.XLSXPath != "" {
		fmt.Fprintf(out, "Workbook written to %s\n", report.XLSXPath)
	}
	for _, a := range report.Archived {
		fmt.Fprintf(out, "Archived %s\n", a)
	}
	return nil
}

// printLedger writes the ledger as an aligned table.
func printLedger(w io.Writer, ledger []types.CallerSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, h := range types.LedgerLayout.Headers() {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, s := range ledger {
		row := types.LedgerLayout.Format(s)
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}
