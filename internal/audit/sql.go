package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fkhayef/expensesplitter/internal/database"
)

type sqlLogger struct {
	db database.Querier
}

// NewSQLLogger stores events in the audit_log table
func NewSQLLogger(db database.Querier) Logger {
	return &sqlLogger{db: db}
}

func (l *sqlLogger) Save(ctx context.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	statement := `
		INSERT INTO audit_log (id, entity_type, entity_id, group_id, action, actor_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = l.db.ExecContext(ctx, statement,
		e.ID.String(), e.EntityType, e.EntityID, nullString(e.GroupID), e.Action,
		nullString(e.ActorID), string(details), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

func (l *sqlLogger) ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Event, error) {
	query := `
		SELECT id, entity_type, entity_id, group_id, action, actor_id, details, created_at
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at, id
	`
	return l.list(ctx, query, entityType, entityID)
}

func (l *sqlLogger) ListByGroup(ctx context.Context, groupID string, limit int) ([]Event, error) {
	query := `
		SELECT id, entity_type, entity_id, group_id, action, actor_id, details, created_at
		FROM audit_log
		WHERE group_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`
	return l.list(ctx, query, groupID, limit)
}

func (l *sqlLogger) list(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var (
			e                         Event
			id                        string
			groupID, actorID, details sql.NullString
		)
		if err := rows.Scan(&id, &e.EntityType, &e.EntityID, &groupID, &e.Action, &actorID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if err := e.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("invalid audit event id %q: %w", id, err)
		}
		e.GroupID = groupID.String
		e.ActorID = actorID.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
