package ingest

import (
	"context"
	"fmt"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Correct replaces a stored reading's value and reconciles its trip right
// away. Unlike Submit, a reconciliation failure is returned to the caller.
func (s *Service) Correct(ctx context.Context, readingID uuid.UUID, value decimal.NullDecimal) (*Result, error) {
	if err := meter.ValidateValue(value); err != nil {
		return nil, err
	}
	r, err := s.readings.UpdateValue(ctx, readingID, value)
	if err != nil {
		return nil, err
	}
	s.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.ReadingCorrected),
		eventlogger.WithData(r),
	))

	t, err := s.reconciler.Reconcile(ctx, *r)
	if err != nil {
		return nil, err
	}
	s.logReconciled(t, r.ID)
	return &Result{Reading: *r, Reconciliation: Outcome{Trip: t}}, nil
}

// Retrigger reconciles every stored reading of the surveyor's day again.
func (s *Service) Retrigger(ctx context.Context, surveyorID uuid.UUID, d day.Day) (*trip.Trip, error) {
	readings, err := s.readings.ListForDay(ctx, surveyorID, d)
	if err != nil {
		return nil, fmt.Errorf("listing readings: %w", err)
	}
	if len(readings) == 0 {
		return nil, meter.ErrReadingNotFound
	}

	var t *trip.Trip
	for _, r := range readings {
		if t, err = s.reconciler.Reconcile(ctx, r); err != nil {
			return nil, err
		}
	}
	s.log.Info().
		Str("surveyor_id", surveyorID.String()).
		Str("day", d.String()).
		Int("readings", len(readings)).
		Msg("day re-reconciled")
	s.logReconciled(t, readings[len(readings)-1].ID)
	return t, nil
}

// Delete removes a reading. Its trip keeps the copied value and the
// reference to the removed row.
func (s *Service) Delete(ctx context.Context, readingID uuid.UUID) error {
	if err := s.readings.Delete(ctx, readingID); err != nil {
		return err
	}
	s.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.ReadingDeleted),
		eventlogger.WithData(map[string]string{"reading_id": readingID.String()}),
	))
	return nil
}

func (s *Service) Reading(ctx context.Context, id uuid.UUID) (*meter.MeterReading, error) {
	return s.readings.GetByID(ctx, id)
}
