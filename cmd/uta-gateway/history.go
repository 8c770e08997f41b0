// ABOUTME: history commands read and prune the persisted invocation log
// ABOUTME: Opens the SQLite file from telemetry.database_path directly

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/uta-gateway/internal/store"
)

func (o *rootOptions) openHistory() (*store.SQLiteStore, error) {
	cfg, _, err := o.config()
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.DatabasePath == "" {
		return nil, errors.New("telemetry.database_path is not configured")
	}
	s, err := store.NewSQLiteStore(cfg.Telemetry.DatabasePath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return s, nil
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		adapterID string
		since     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show per-adapter invocation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openHistory()
			if err != nil {
				return err
			}
			defer s.Close()

			var filter store.InvocationFilter
			if adapterID != "" {
				filter.AdapterID = &adapterID
			}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}

			stats, err := s.GetInvocationStats(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintln(out, "no invocations recorded")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ADAPTER\tCALLS\tOK\tFAILED\tAVG MS\tMAX MS\tLAST")
			for _, st := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%d\t%s\n",
					st.AdapterID, st.Invocations, st.Successes, st.Failures,
					st.AvgDurationMs, st.MaxDurationMs, st.LastInvocationAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&adapterID, "adapter", "", "Only this adapter id")
	cmd.Flags().DurationVar(&since, "since", 0, "Only invocations newer than this (e.g. 24h)")

	cmd.AddCommand(newHistoryPruneCmd(opts))
	return cmd
}

func newHistoryPruneCmd(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete invocation records older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			s, err := opts.openHistory()
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.PruneInvocations(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("pruning history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d invocation(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	return cmd
}
