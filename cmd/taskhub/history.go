package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskflow-hub/realtime/internal/db"
	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/repository"
)

type historyOptions struct {
	path   string
	filter model.EventFilter
	since  time.Duration
	count  bool
	json   bool
}

func (a *app) historyCommand() *cobra.Command {
	var (
		opts      historyOptions
		eventType string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show events recorded by taskhub listen --journal",
		Example: `  taskhub history --journal data/journal.db --task T1
  taskhub history --journal data/journal.db --type notification --since 1h --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.filter.Type = model.EventType(eventType)
			return a.runHistory(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.path, "journal", "", "SQLite journal file (default client.journal_path)")

	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type")
	cmd.Flags().StringVar(&opts.filter.UserID, "user", "", "only events from this user")
	cmd.Flags().StringVar(&opts.filter.ProjectID, "project", "", "only events for this project")
	cmd.Flags().StringVar(&opts.filter.TaskID, "task", "", "only events for this task")
	cmd.Flags().StringVar(&opts.filter.TeamID, "team", "", "only events for this team")
	cmd.Flags().DurationVar(&opts.since, "since", 0, "only events that occurred within this window")
	cmd.Flags().IntVarP(&opts.filter.Limit, "limit", "n", 100, "show at most this many of the latest matches (0 for all)")
	cmd.Flags().BoolVar(&opts.count, "count", false, "print the number of matches only")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print entries as JSON lines")

	return cmd
}

func (a *app) runHistory(ctx context.Context, out io.Writer, opts historyOptions) error {
	path := opts.path
	if path == "" {
		path = a.cfg.Client.JournalPath
	}
	if path == "" {
		return fmt.Errorf("no journal configured; pass --journal or set client.journal_path")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	database, err := db.Open(path)
	if err != nil {
		return err
	}
	defer database.Close()

	if opts.since > 0 {
		opts.filter.Since = time.Now().Add(-opts.since)
	}

	repo := repository.NewEventRepository(database)
	if opts.count {
		n, err := repo.Count(ctx, opts.filter)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, n)
		return nil
	}

	entries, err := repo.List(ctx, opts.filter)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if opts.json {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", data)
			continue
		}
		fmt.Fprintf(out, "%6d %s\n", e.ID, formatEvent(e.Event))
	}
	return nil
}
