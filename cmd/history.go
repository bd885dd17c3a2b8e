package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd lists recent runs from the history database.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openHistory(cfg)
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("run history is disabled (history_db: off)")
		}
		defer st.Close()

		runs, err := st.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSTATUS\tWINDOW\tPOLICY\tLEDGER / ERROR")
		for _, r := range runs {
			duration := "-"
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			}
			detail := r.Ledger
			if r.Error != "" {
				detail = r.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s .. %s\t%s\t%s\n",
				shortID(r.ID), r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, r.Status,
				r.WindowStart, r.WindowEnd, r.CachePolicy, detail)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
