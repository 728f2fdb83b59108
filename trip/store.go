package trip

import (
	"context"

	"github.com/billbatista/fieldmiles/day"
	"github.com/google/uuid"
)

// Store persists trips. Every mutating call runs its callback inside a
// single transaction; when the callback returns an error nothing is
// written.
type Store interface {
	// ReconcileDay locks the trip for (surveyorID, d), creating it when
	// absent, and hands it to fn.
	ReconcileDay(ctx context.Context, surveyorID uuid.UUID, d day.Day, fn func(*Trip) error) (*Trip, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*Trip) error) (*Trip, error)
	Get(ctx context.Context, id uuid.UUID) (*Trip, error)
	// List returns matching trips, most recent date first.
	List(ctx context.Context, q Query) ([]Trip, error)
}

// Query is a resolved trip filter. Zero From/To leave that side of the
// date range open.
type Query struct {
	SurveyorID uuid.NullUUID
	From       day.Day
	To         day.Day
}

func (q Query) Matches(t Trip) bool {
	if q.SurveyorID.Valid && t.SurveyorID != q.SurveyorID.UUID {
		return false
	}
	if !q.From.IsZero() && t.Date.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && t.Date.After(q.To) {
		return false
	}
	return true
}
