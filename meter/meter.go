package meter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session is one of the two daily odometer slots.
type Session string

const (
	Morning Session = "morning"
	Evening Session = "evening"
)

var (
	ErrDuplicateSubmission = errors.New("a reading was already submitted for this session")
	ErrReadingNotFound     = errors.New("reading not found")
	ErrInvalidSession      = errors.New("session must be morning or evening")
	ErrNegativeReading     = errors.New("reading can't be negative")
)

func ParseSession(s string) (Session, error) {
	switch Session(s) {
	case Morning, Evening:
		return Session(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSession, s)
	}
}

func (s Session) Valid() bool {
	return s == Morning || s == Evening
}

// MeterReading is immutable once stored except for Reading, which an
// administrator may correct.
type MeterReading struct {
	ID         uuid.UUID           `json:"id"`
	SurveyorID uuid.UUID           `json:"surveyor_id"`
	Day        day.Day             `json:"day"`
	Session    Session             `json:"session"`
	Reading    decimal.NullDecimal `json:"reading"`
	PhotoRef   string              `json:"photo_ref"`
	CapturedAt time.Time           `json:"captured_at"`
}

// ValidateValue accepts an absent reading or a non-negative one.
func ValidateValue(v decimal.NullDecimal) error {
	if v.Valid && v.Decimal.IsNegative() {
		return ErrNegativeReading
	}
	return nil
}

type Repository interface {
	// Insert returns ErrDuplicateSubmission when the (surveyor, day, session)
	// slot is already taken.
	Insert(ctx context.Context, r MeterReading) error
	Exists(ctx context.Context, surveyorID uuid.UUID, d day.Day, s Session) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*MeterReading, error)
	ListForDay(ctx context.Context, surveyorID uuid.UUID, d day.Day) ([]MeterReading, error)
	UpdateValue(ctx context.Context, id uuid.UUID, value decimal.NullDecimal) (*MeterReading, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
