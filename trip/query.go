package trip

import (
	"context"
	"fmt"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/user"
	"github.com/google/uuid"
)

// Caller is the authenticated identity asking for trips.
type Caller struct {
	ID   uuid.UUID
	Role user.Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == user.RoleAdmin
}

// Filter is the caller-supplied listing filter. Date wins over the
// StartDate/EndDate range when both are given.
type Filter struct {
	SurveyorID uuid.NullUUID
	Date       day.Day
	StartDate  day.Day
	EndDate    day.Day
}

// resolve pins non-administrators to their own trips regardless of the
// surveyor they asked for.
func (f Filter) resolve(caller Caller) Query {
	q := Query{SurveyorID: f.SurveyorID}
	if !caller.IsAdmin() {
		q.SurveyorID = uuid.NullUUID{UUID: caller.ID, Valid: true}
	}

	if !f.Date.IsZero() {
		q.From, q.To = f.Date, f.Date
	} else {
		q.From, q.To = f.StartDate, f.EndDate
	}
	return q
}

// Directory resolves surveyor ids to display profiles.
type Directory interface {
	Profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]user.Profile, error)
}

// View is a trip joined with its surveyor's display attributes.
type View struct {
	Trip
	Surveyor *user.Profile `json:"surveyor,omitempty"`
}

func (s *Service) List(ctx context.Context, caller Caller, f Filter) ([]View, error) {
	trips, err := s.store.List(ctx, f.resolve(caller))
	if err != nil {
		return nil, fmt.Errorf("listing trips: %w", err)
	}
	return s.join(ctx, trips)
}

// Get applies the same visibility rule as List: another surveyor's trip is
// reported as not found.
func (s *Service) Get(ctx context.Context, caller Caller, id uuid.UUID) (*View, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && t.SurveyorID != caller.ID {
		return nil, ErrTripNotFound
	}

	views, err := s.join(ctx, []Trip{*t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *Service) join(ctx context.Context, trips []Trip) ([]View, error) {
	views := make([]View, len(trips))
	for i, t := range trips {
		views[i] = View{Trip: t}
	}
	if s.directory == nil || len(trips) == 0 {
		return views, nil
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, t := range trips {
		if !seen[t.SurveyorID] {
			seen[t.SurveyorID] = true
			ids = append(ids, t.SurveyorID)
		}
	}

	profiles, err := s.directory.Profiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving surveyors: %w", err)
	}
	for i := range views {
		if p, ok := profiles[views[i].SurveyorID]; ok {
			views[i].Surveyor = &p
		}
	}
	return views, nil
}
