// =============================================================================
// talktime - Root Command
// =============================================================================
//
// This file defines the root command and the helpers every subcommand uses to
// load configuration, build the logger and open the run history.
//
// COBRA CLI STRUCTURE:
//   rootCmd (talktime)
//   ├── runCmd      (talktime run)
//   ├── combineCmd  (talktime combine)
//   ├── validateCmd (talktime validate)
//   ├── historyCmd  (talktime history)
//   ├── watchCmd    (talktime watch)
//   └── versionCmd  (talktime version)
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/logging"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/store"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// defaultConfigFile is used when --config is not given. If it does not
// exist the built-in defaults apply.
const defaultConfigFile = "config.yaml"

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose enables debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "talktime",
	Short: "talktime - per-caller talk-time ledger from PBX and provider CDRs",
	Long: `talktime reads the call-detail exports of an on-premises PBX and of two
cloud telephony providers, keeps the calls placed inside a reporting window to
valid external numbers, and writes one ledger row per caller with the number
of calls, the total talking time and the first and last call.

Example Usage:
  talktime run                                  # Build the ledger with config.yaml
  talktime run --start "2024-05-23 11:00:00" --end "2024-05-23 23:59:00"
  talktime run --force --xlsx                   # Regenerate everything, also write .xlsx
  talktime validate                             # Check configuration and inputs`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		defaultConfigFile,
		"Path to the YAML configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig reads --config. When the flag was not given and the default
// file is absent, the built-in defaults are used.
func loadConfig(cmd *cobra.Command) (*config.MainConfig, error) {
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the logger for cfg honouring --verbose.
func newLogger(cmd *cobra.Command, cfg *config.MainConfig) (*slog.Logger, func() error, error) {
	return logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Verbose: verbose,
		File:    cfg.Path(cfg.LogFile),
		Stderr:  cmd.ErrOrStderr(),
	})
}

// openHistory opens the run history, or returns nil when it is switched off.
func openHistory(cfg *config.MainConfig) (*store.Store, error) {
	path := cfg.HistoryPath()
	if path == "" {
		return nil, nil
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	return st, nil
}
