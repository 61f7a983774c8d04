package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskflow-hub/realtime/internal/connection"
	"github.com/taskflow-hub/realtime/internal/db"
	"github.com/taskflow-hub/realtime/internal/desktop"
	"github.com/taskflow-hub/realtime/internal/hooks"
	"github.com/taskflow-hub/realtime/internal/journal"
	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/registry"
	"github.com/taskflow-hub/realtime/internal/repository"
)

func (a *app) listenCommand() *cobra.Command {
	var (
		tasks, projects, teams []string
		asJSON                 bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect to a hub and print the events it delivers",
		Example: `  # Follow a task on the local development hub
  taskhub listen --token u1:Ada --task T1

  # Record everything into a journal and raise desktop notifications
  taskhub listen --token u1 --project P1 --journal data/journal.db --desktop-notifications`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runListen(cmd.Context(), cmd.OutOrStdout(), listenTargets{
				tasks:    tasks,
				projects: projects,
				teams:    teams,
				json:     asJSON,
			})
		},
	}

	cmd.Flags().String("hub-url", "", "hub URL (http, https, ws or wss)")
	cmd.Flags().String("token", "", "bearer token sent to the hub")
	cmd.Flags().String("journal", "", "record events into this SQLite file")
	cmd.Flags().Bool("desktop-notifications", false, "surface hub notifications through the desktop notifier")
	cmd.Flags().Int("queue-capacity", 0, "bound the outbound queue (0 is unbounded)")
	cmd.Flags().Int("heartbeat-failure-limit", 0, "reconnect after this many consecutive heartbeat failures (0 only logs)")
	a.bind("client.hub_url", cmd.Flags().Lookup("hub-url"))
	a.bind("client.token", cmd.Flags().Lookup("token"))
	a.bind("client.journal_path", cmd.Flags().Lookup("journal"))
	a.bind("client.desktop_notifications", cmd.Flags().Lookup("desktop-notifications"))
	a.bind("client.queue_capacity", cmd.Flags().Lookup("queue-capacity"))
	a.bind("client.heartbeat_failure_limit", cmd.Flags().Lookup("heartbeat-failure-limit"))

	cmd.Flags().StringSliceVar(&tasks, "task", nil, "task ids to subscribe to")
	cmd.Flags().StringSliceVar(&projects, "project", nil, "project ids to subscribe to")
	cmd.Flags().StringSliceVar(&teams, "team", nil, "team ids to subscribe to")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON lines")

	return cmd
}

type listenTargets struct {
	tasks, projects, teams []string
	json                   bool
}

func (a *app) runListen(ctx context.Context, out io.Writer, targets listenTargets) error {
	cfg := a.cfg.Client

	var notifier desktop.Notifier
	if cfg.DesktopNotes {
		notifier = desktop.NewNativeNotifier(a.log)
	}

	reg := registry.New(a.log)
	manager := connection.New(connection.Config{
		HubURL: cfg.HubURL,
		Token:  func() (string, error) { return a.v.GetString("client.token"), nil },
		Backoff: connection.Backoff{
			Base:        cfg.BackoffBase,
			Max:         cfg.BackoffMax,
			MaxAttempts: cfg.MaxAttempts,
		},
		HeartbeatInterval:     cfg.HeartbeatInterval,
		HeartbeatFailureLimit: cfg.HeartbeatFailureLimit,
		QueueCapacity:         cfg.QueueCapacity,
		Notifier:              notifier,
		Log:                   a.log,
	}, reg)

	p := &printer{out: out, json: targets.json}
	for _, t := range append(append([]model.EventType(nil), model.KnownEventTypes...), model.EventConnectionStatusChanged) {
		reg.Subscribe(t, p.print)
	}

	if cfg.JournalPath != "" {
		closeJournal, err := a.openJournal(manager, cfg.JournalPath, cfg.JournalKeep)
		if err != nil {
			return err
		}
		defer closeJournal()
	}

	feed := hooks.NewNotificationFeed(manager, manager)
	defer feed.Close()
	presence := hooks.NewPresenceMap(manager)
	defer presence.Close()

	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := manager.Stop(stopCtx); err != nil {
			a.log.Warn().Err(err).Msg("Failed to stop hub connection")
		}
	}()

	subscribe := []struct {
		ids []string
		fn  func(context.Context, string) error
	}{
		{targets.tasks, manager.SubscribeToTask},
		{targets.projects, manager.SubscribeToProject},
		{targets.teams, manager.SubscribeToTeam},
	}
	for _, s := range subscribe {
		for _, id := range s.ids {
			if err := s.fn(ctx, id); err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", id, err)
			}
		}
	}

	<-ctx.Done()

	a.log.Info().
		Int("notifications", len(feed.Notifications())).
		Int("unread", feed.UnreadCount()).
		Int("online_users", len(presence.OnlineUsers())).
		Int("queued", manager.Outbox().Len()).
		Msg("Listener stopped")
	return nil
}

func (a *app) openJournal(sub hooks.Subscriber, path string, keep int) (func(), error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}

	repo := repository.NewEventRepository(database)
	recorder := journal.NewRecorder(sub, repo, journal.Config{Log: a.log})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Close(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Journal did not drain")
		}
		written, dropped := recorder.Stats()
		if keep > 0 {
			if pruned, err := repo.Prune(ctx, keep); err != nil {
				a.log.Warn().Err(err).Msg("Failed to prune journal")
			} else if pruned > 0 {
				a.log.Debug().Int64("pruned", pruned).Msg("Pruned journal")
			}
		}
		database.Close()
		a.log.Info().Int("written", written).Int("dropped", dropped).Str("path", path).Msg("Journal closed")
	}, nil
}

// printer writes events to the terminal. Broadcasts can come from the read
// loop and from status changes concurrently.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	json bool
}

func (p *printer) print(evt model.RealtimeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		if data, err := json.Marshal(evt); err == nil {
			fmt.Fprintf(p.out, "%s\n", data)
		}
		return
	}
	fmt.Fprintln(p.out, formatEvent(evt))
}

func formatEvent(evt model.RealtimeEvent) string {
	line := fmt.Sprintf("%s %-24s", evt.Timestamp.Local().Format("15:04:05"), evt.Type)
	for _, f := range []struct{ key, value string }{
		{"task", evt.TaskID},
		{"project", evt.ProjectID},
		{"team", evt.TeamID},
		{"user", evt.UserID},
	} {
		if f.value != "" {
			line += fmt.Sprintf(" %s=%s", f.key, f.value)
		}
	}
	if len(evt.Data) > 0 {
		line += " " + string(evt.Data)
	}
	return line
}
