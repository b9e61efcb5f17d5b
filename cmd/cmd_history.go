// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jcodagnone/nemchi/config"
	"github.com/jcodagnone/nemchi/history"
	"github.com/spf13/cobra"
)

var errHistoryDisabled = errors.New("history is disabled, set history_path")

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the resolution audit log",
}

var historyExportCmd = &cobra.Command{
	Use:   "export <out.json>",
	Short: "Export the resolution log to a JSON file, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(repo history.Repository) error {
			n, err := exportHistory(cmd.Context(), repo, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("✅ Exported %d resolutions to %s\n", n, args[0])

			return nil
		})
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count logged resolutions by method",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withHistory(func(repo history.Repository) error {
			return printHistoryStats(cmd.Context(), os.Stdout, repo)
		})
	},
}

func withHistory(fn func(history.Repository) error) error {
	cfg, err := config.Load(globalOptions.ConfigPath)
	if err != nil {
		return err
	}

	if cfg.HistoryPath == "" {
		return errHistoryDisabled
	}

	db, repo, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(repo)
}

func exportHistory(ctx context.Context, repo history.Repository, path string) (int, error) {
	records, err := repo.List(ctx, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("listing history: %w", err)
	}

	if records == nil {
		records = []history.Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling history: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}

	return len(records), nil
}

func printHistoryStats(ctx context.Context, w io.Writer, repo history.Repository) error {
	counts, err := repo.CountByMethod(ctx)
	if err != nil {
		return fmt.Errorf("counting history: %w", err)
	}

	methods := make([]string, 0, len(counts))
	total := 0

	for m, n := range counts {
		methods = append(methods, m)
		total += n
	}

	sort.Strings(methods)

	fmt.Fprintf(w, "%d resolutions\n", total)

	for _, m := range methods {
		fmt.Fprintf(w, "   %-20s %6d %5.1f%%\n", m, counts[m], 100*float64(counts[m])/float64(total))
	}

	return nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyStatsCmd)
}
