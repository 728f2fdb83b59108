package trip

import (
	"errors"
	"fmt"
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrTripNotFound     = errors.New("trip not found")
	ErrNothingToApprove = errors.New("trip has no final distance to approve")
	ErrNegativeDistance = errors.New("final distance can't be negative")
	ErrWrongTrip        = errors.New("reading belongs to a different surveyor or day")

	// ErrReconciliationConflict is returned by a Store when a concurrent
	// transaction forced a rollback. The Service retries it.
	ErrReconciliationConflict = errors.New("concurrent trip update")
	ErrReconciliationFailed   = errors.New("trip reconciliation failed")
)

// Trip is the daily aggregate of a surveyor's morning and evening odometer
// readings. The reading values are denormalized copies and stay
// authoritative even if the source readings are later deleted.
type Trip struct {
	ID         uuid.UUID `json:"id"`
	SurveyorID uuid.UUID `json:"surveyor_id"`
	Date       day.Day   `json:"date"`

	MorningReadingID uuid.NullUUID       `json:"morning_reading_id"`
	EveningReadingID uuid.NullUUID       `json:"evening_reading_id"`
	MorningReading   decimal.NullDecimal `json:"morning_reading"`
	EveningReading   decimal.NullDecimal `json:"evening_reading"`

	ComputedDistance decimal.NullDecimal `json:"computed_distance"`
	FinalDistance    decimal.NullDecimal `json:"final_distance"`

	IsApproved bool          `json:"is_approved"`
	ApprovedBy uuid.NullUUID `json:"approved_by"`
	ApprovedAt *time.Time    `json:"approved_at"`

	CreatedAt time.Time `json:"created_at"`
}

func New(surveyorID uuid.UUID, d day.Day, createdAt time.Time) *Trip {
	return &Trip{
		ID:         uuid.New(),
		SurveyorID: surveyorID,
		Date:       d,
		CreatedAt:  createdAt.UTC(),
	}
}

// Apply folds r into its session slot, overwriting whatever the slot held,
// and recomputes the derived distances. Applying the same reading twice
// leaves the trip unchanged.
func (t *Trip) Apply(r meter.MeterReading) error {
	if r.SurveyorID != t.SurveyorID || !r.Day.Equal(t.Date) {
		return ErrWrongTrip
	}

	ref := uuid.NullUUID{UUID: r.ID, Valid: true}
	switch r.Session {
	case meter.Morning:
		t.MorningReadingID = ref
		t.MorningReading = r.Reading
	case meter.Evening:
		t.EveningReadingID = ref
		t.EveningReading = r.Reading
	default:
		return fmt.Errorf("%w: %q", meter.ErrInvalidSession, r.Session)
	}

	t.recompute()
	return nil
}

// recompute derives ComputedDistance from the stored slot values and seeds
// FinalDistance once. A FinalDistance that is already set belongs to the
// administrators and is never replaced here.
func (t *Trip) recompute() {
	if !t.MorningReading.Valid || !t.EveningReading.Valid {
		t.ComputedDistance = decimal.NullDecimal{}
		return
	}

	t.ComputedDistance = decimal.NewNullDecimal(t.EveningReading.Decimal.Sub(t.MorningReading.Decimal))
	if !t.FinalDistance.Valid {
		t.FinalDistance = t.ComputedDistance
	}
}

// NegativeDistance reports an evening reading below the morning one. The
// value is kept as computed, and seeded into FinalDistance when that was
// empty, but an administrator has to correct it before approving.
func (t *Trip) NegativeDistance() bool {
	return t.ComputedDistance.Valid && t.ComputedDistance.Decimal.IsNegative()
}

func (t *Trip) SetFinalDistance(value decimal.Decimal) error {
	if value.IsNegative() {
		return ErrNegativeDistance
	}
	t.FinalDistance = decimal.NewNullDecimal(value)
	return nil
}

// ToggleApproval flips the approval state. Approving requires a final
// distance; revoking always succeeds and clears who and when.
func (t *Trip) ToggleApproval(adminID uuid.UUID, at time.Time) error {
	if t.IsApproved {
		t.IsApproved = false
		t.ApprovedBy = uuid.NullUUID{}
		t.ApprovedAt = nil
		return nil
	}

	if !t.FinalDistance.Valid {
		return ErrNothingToApprove
	}
	at = at.UTC()
	t.IsApproved = true
	t.ApprovedBy = uuid.NullUUID{UUID: adminID, Valid: true}
	t.ApprovedAt = &at
	return nil
}
