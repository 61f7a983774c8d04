package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskflow-hub/realtime/internal/model"
)

// EventRepository provides data access for the event journal.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create appends an event to the journal and returns its id.
func (r *EventRepository) Create(ctx context.Context, evt model.RealtimeEvent, receivedAt time.Time) (int64, error) {
	query := `
		INSERT INTO events (type, user_id, project_id, task_id, team_id, data, occurred_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var data sql.NullString
	if len(evt.Data) > 0 {
		data = sql.NullString{String: string(evt.Data), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		string(evt.Type),
		nullString(evt.UserID),
		nullString(evt.ProjectID),
		nullString(evt.TaskID),
		nullString(evt.TeamID),
		data,
		evt.Timestamp.UTC(),
		receivedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get event id: %w", err)
	}
	return id, nil
}

func whereClause(filter model.EventFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if filter.Type != "" {
		add("type = ?", string(filter.Type))
	}
	if filter.UserID != "" {
		add("user_id = ?", filter.UserID)
	}
	if filter.ProjectID != "" {
		add("project_id = ?", filter.ProjectID)
	}
	if filter.TaskID != "" {
		add("task_id = ?", filter.TaskID)
	}
	if filter.TeamID != "" {
		add("team_id = ?", filter.TeamID)
	}
	if !filter.Since.IsZero() {
		add("occurred_at >= ?", filter.Since.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns the journal entries matching filter in insertion order. With a
// limit only the most recent matches are returned, still oldest first.
func (r *EventRepository) List(ctx context.Context, filter model.EventFilter) ([]model.StoredEvent, error) {
	where, args := whereClause(filter)
	query := `
		SELECT id, type, user_id, project_id, task_id, team_id, data, occurred_at, received_at
		FROM events` + where + `
		ORDER BY id DESC
	`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.StoredEvent
	for rows.Next() {
		var stored model.StoredEvent
		var eventType string
		var userID, projectID, taskID, teamID, data sql.NullString

		err := rows.Scan(
			&stored.ID,
			&eventType,
			&userID,
			&projectID,
			&taskID,
			&teamID,
			&data,
			&stored.Event.Timestamp,
			&stored.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		stored.Event.Type = model.EventType(eventType)
		stored.Event.UserID = userID.String
		stored.Event.ProjectID = projectID.String
		stored.Event.TaskID = taskID.String
		stored.Event.TeamID = teamID.String
		if data.Valid {
			stored.Event.Data = []byte(data.String)
		}

		events = append(events, stored)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Count returns how many entries match filter. Limit is ignored.
func (r *EventRepository) Count(ctx context.Context, filter model.EventFilter) (int, error) {
	where, args := whereClause(filter)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// Prune deletes all but the newest keep entries and returns how many were removed.
func (r *EventRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	query := `DELETE FROM events WHERE id NOT IN (SELECT id FROM events ORDER BY id DESC LIMIT ?)`

	result, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
