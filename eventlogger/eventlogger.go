package eventlogger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ReadingSubmitted      = "reading.submitted"
	ReadingCorrected      = "reading.corrected"
	ReadingDeleted        = "reading.deleted"
	TripReconciled        = "trip.reconciled"
	TripReconcileFailed   = "trip.reconcile_failed"
	TripFinalDistanceSet  = "trip.final_distance_set"
	TripApprovalToggled   = "trip.approval_toggled"
	UserLoggedIn          = "user.logged_in"
	UserRegistered        = "user.registered"
	UserActivationChanged = "user.activation_changed"
)

type Event struct {
	ID        uuid.UUID         `json:"id,omitempty"`
	Type      string            `json:"event_type,omitempty"`
	Data      any               `json:"event_data,omitempty"`
	Metadata  map[string]string `json:"event_metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type EventOption func(*Event)

func WithType(eventType string) EventOption {
	return func(e *Event) {
		e.Type = eventType
	}
}

func WithData(data any) EventOption {
	return func(e *Event) {
		e.Data = data
	}
}

func WithMetadata(metadata map[string]string) EventOption {
	return func(e *Event) {
		e.Metadata = metadata
	}
}

func NewEvent(opts ...EventOption) Event {
	e := Event{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Query selects stored events. Zero fields match everything; results come
// newest first and are capped at Limit.
type Query struct {
	Type  string
	Since time.Time
	Limit int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	}
	return q.Limit
}

func (q Query) matches(e Event) bool {
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	return q.Since.IsZero() || !e.CreatedAt.Before(q.Since)
}

// EventLogger is the append-only audit store.
type EventLogger interface {
	Save(ctx context.Context, e Event) error
	Find(ctx context.Context, q Query) ([]Event, error)
}

// Sink accepts events without blocking the caller. *Worker is the
// production implementation.
type Sink interface {
	Log(event Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Log(Event) {}
