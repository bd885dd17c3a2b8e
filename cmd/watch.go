// =============================================================================
// talktime - Watch Command
// =============================================================================
//
// COMMAND USAGE:
//   talktime watch [flags]
//
// Runs the pipeline once, then again whenever a raw export (the two provider
// exports, the PBX export or a mapping file) changes. Bursts of changes are
// debounced by watch.debounce and runs never overlap. Stops on Ctrl-C.
//
// The "exists" cache policy would keep reusing the combined export after the
// first run, so watch promotes it to "fingerprint" when a history database is
// configured and to "always" otherwise.
//
// =============================================================================

package cmd

import (
	"context"
	"os"
	"log/slog"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/watch"
)

var watchOpts runFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild the ledger whenever a raw export changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyRunFlags(cfg, watchOpts); err != nil {
			return err
		}
		logger, closeLog, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		promoteWatchPolicy(cfg, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		w := watch.New(watchedFiles(cfg), cfg.Watch.Debounce, rebuild(cfg, watchOpts, logger), logger)
		w.RunOnStart = true
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addRunFlags(watchCmd, &watchOpts, true)
}

// watchedFiles lists the files no stage writes. The combined export is left
// out because the pipeline itself rewrites it.
func watchedFiles(cfg *config.MainConfig) []string {
	var files []string
	for _, in := range cfg.Combiner.Inputs {
		files = append(files, cfg.Path(in))
	}
	files = append(files, cfg.Path(cfg.PBX.Input))
	for _, m := range []string{cfg.PBX.MappingFile, cfg.Provider.MappingFile} {
		if m != "" {
			files = append(files, cfg.Path(m))
		}
	}
	return files
}

// promoteWatchPolicy replaces the "exists" cache policy so that a changed
// provider export reaches the combine stage.
func promoteWatchPolicy(cfg *config.MainConfig, logger *slog.Logger) {
	if cfg.CachePolicy != config.CacheExists {
		return
	}
	policy := config.CacheAlways
	if cfg.HistoryPath() != "" {
		policy = config.CacheFingerprint
	}
	logger.Info("cache policy overridden for watch", "from", cfg.CachePolicy, "to", policy)
	cfg.CachePolicy = policy
}

// rebuild is the run triggered by the watcher.
func rebuild(cfg *config.MainConfig, f runFlags, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		report, _, err := executeReport(ctx, cfg, f, logger)
		if err != nil {
			return err
		}
		logger.Info("ledger updated", "ledger", report.LedgerPath, "callers", len(report.Ledger))
		return nil
	}
}
