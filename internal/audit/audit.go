// Package audit keeps an append-only record of changes to ledger entities.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action is what happened to an entity
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionSettle   Action = "SETTLE"
	ActionUnsettle Action = "UNSETTLE"
	ActionRestore  Action = "RESTORE"
	ActionCancel   Action = "CANCEL"
	ActionComplete Action = "COMPLETE"
)

// EntityType is the kind of record an event refers to
type EntityType string

const (
	EntityUser       EntityType = "USER"
	EntityGroup      EntityType = "GROUP"
	EntityExpense    EntityType = "EXPENSE"
	EntitySettlement EntityType = "SETTLEMENT"
)

// Event is one audit record
type Event struct {
	ID         uuid.UUID         `json:"id"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	GroupID    string            `json:"group_id,omitempty"`
	Action     Action            `json:"action"`
	ActorID    string            `json:"actor_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

type EventOption func(*Event)

// WithGroup ties the event to a group
func WithGroup(groupID string) EventOption {
	return func(e *Event) {
		e.GroupID = groupID
	}
}

// WithActor records who made the change
func WithActor(actorID string) EventOption {
	return func(e *Event) {
		e.ActorID = actorID
	}
}

// WithDetail adds one key/value pair of context
func WithDetail(key, value string) EventOption {
	return func(e *Event) {
		e.Details[key] = value
	}
}

func NewEvent(entityType EntityType, entityID string, action Action, opts ...EventOption) Event {
	e := Event{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Details:    make(map[string]string),
		CreatedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Logger persists and reads back audit events
type Logger interface {
	Save(ctx context.Context, e Event) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Event, error)
	ListByGroup(ctx context.Context, groupID string, limit int) ([]Event, error)
}

// Recorder accepts events without blocking the caller
type Recorder interface {
	Record(e Event)
}

// Discard is a Recorder that drops every event
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) {}
