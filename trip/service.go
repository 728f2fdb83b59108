package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billbatista/fieldmiles/logger"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const DefaultMaxAttempts = 3

// Service reconciles readings into trips and runs the approval workflow.
type Service struct {
	store       Store
	directory   Directory
	now         func() time.Time
	maxAttempts int
	retryDelay  time.Duration
	log         zerolog.Logger
}

type Option func(*Service)

func WithDirectory(d Directory) Option {
	return func(s *Service) {
		s.directory = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithMaxAttempts bounds how often a conflicting reconciliation is retried
// before ErrReconciliationFailed is returned.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  10 * time.Millisecond,
		log:         logger.WithComponent("trip"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile folds r into the trip for its surveyor and day.
func (s *Service) Reconcile(ctx context.Context, r meter.MeterReading) (*Trip, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconcileDuration)

	if !r.Session.Valid() {
		metrics.Reconciliations.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %q", meter.ErrInvalidSession, r.Session)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		t, err := s.store.ReconcileDay(ctx, r.SurveyorID, r.Day, func(t *Trip) error {
			return t.Apply(r)
		})
		if err == nil {
			metrics.Reconciliations.WithLabelValues("ok").Inc()
			s.log.Debug().
				Str("trip_id", t.ID.String()).
				Str("reading_id", r.ID.String()).
				Str("session", string(r.Session)).
				Int("attempt", attempt).
				Msg("reading reconciled")
			if t.NegativeDistance() {
				metrics.NegativeDistances.Inc()
				s.log.Warn().
					Str("trip_id", t.ID.String()).
					Str("surveyor_id", t.SurveyorID.String()).
					Str("date", t.Date.String()).
					Str("computed_distance", t.ComputedDistance.Decimal.String()).
					Str("final_distance", t.FinalDistance.Decimal.String()).
					Msg("evening reading below morning reading, final distance needs review")
			}
			return t, nil
		}
		if !errors.Is(err, ErrReconciliationConflict) {
			metrics.Reconciliations.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("reconciling reading %s: %w", r.ID, err)
		}

		lastErr = err
		s.log.Warn().Err(err).
			Str("reading_id", r.ID.String()).
			Int("attempt", attempt).
			Msg("reconciliation conflict, retrying")

		select {
		case <-ctx.Done():
			metrics.Reconciliations.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %w", ErrReconciliationFailed, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.retryDelay):
		}
	}

	metrics.Reconciliations.WithLabelValues("exhausted").Inc()
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrReconciliationFailed, s.maxAttempts, lastErr)
}

// SetFinalDistance overwrites the administrator-facing distance. It is the
// only way to change a final distance once it has been seeded.
func (s *Service) SetFinalDistance(ctx context.Context, id uuid.UUID, value decimal.Decimal) (*Trip, error) {
	if value.IsNegative() {
		return nil, ErrNegativeDistance
	}
	return s.store.Update(ctx, id, func(t *Trip) error {
		return t.SetFinalDistance(value)
	})
}

func (s *Service) ToggleApproval(ctx context.Context, id, adminID uuid.UUID) (*Trip, error) {
	now := s.now()
	t, err := s.store.Update(ctx, id, func(t *Trip) error {
		return t.ToggleApproval(adminID, now)
	})
	if err != nil {
		return nil, err
	}

	state := "unapproved"
	if t.IsApproved {
		state = "approved"
	}
	metrics.ApprovalsToggled.WithLabelValues(state).Inc()
	s.log.Info().
		Str("trip_id", t.ID.String()).
		Str("admin_id", adminID.String()).
		Str("state", state).
		Msg("trip approval toggled")
	return t, nil
}
