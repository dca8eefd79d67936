package main

import (
	"encoding/json"
	"fmt"

	"github.com/dagbolade/clipboard-guardian/internal/audit"
	"github.com/dagbolade/clipboard-guardian/internal/config"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		path   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent clipboard history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			entries, err := readHistory(cmd, path, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-6s %-8s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Decision, e.Note)
				if e.Sample != "" {
					fmt.Fprintf(out, "    %q\n", e.Sample)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", getEnvInt("HISTORY_LIMIT", 20), "Number of entries to show")
	cmd.Flags().StringVar(&path, "path", getEnv("HISTORY_PATH", "./logs/clipboard_log.ndjson"), "History file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func readHistory(cmd *cobra.Command, path string, limit int) ([]audit.Entry, error) {
	if getEnv("HISTORY_BACKEND", config.HistoryJSONL) != config.HistorySQLite {
		return audit.ReadJSONL(cmd.Context(), path, limit)
	}

	store, err := audit.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Recent(cmd.Context(), limit)
}
