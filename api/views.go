package api

import (
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/billbatista/fieldmiles/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// number writes an optional decimal as a bare JSON number, or null. Only
// API responses use it; stored documents keep the decimal package's quoted
// encoding.
type number decimal.NullDecimal

func (n number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.Decimal.String()), nil
}

type tripResponse struct {
	ID         uuid.UUID `json:"id"`
	SurveyorID uuid.UUID `json:"surveyor_id"`
	Date       day.Day   `json:"date"`

	MorningReadingID uuid.NullUUID `json:"morning_reading_id"`
	EveningReadingID uuid.NullUUID `json:"evening_reading_id"`
	MorningReading   number        `json:"morning_reading"`
	EveningReading   number        `json:"evening_reading"`
	ComputedDistance number        `json:"computed_distance"`
	FinalDistance    number        `json:"final_distance"`

	IsApproved bool          `json:"is_approved"`
	ApprovedBy uuid.NullUUID `json:"approved_by"`
	ApprovedAt *time.Time    `json:"approved_at"`
	CreatedAt  time.Time     `json:"created_at"`

	Surveyor *user.Profile `json:"surveyor,omitempty"`
}

func newTripResponse(t *trip.Trip) *tripResponse {
	if t == nil {
		return nil
	}
	return &tripResponse{
		ID:               t.ID,
		SurveyorID:       t.SurveyorID,
		Date:             t.Date,
		MorningReadingID: t.MorningReadingID,
		EveningReadingID: t.EveningReadingID,
		MorningReading:   number(t.MorningReading),
		EveningReading:   number(t.EveningReading),
		ComputedDistance: number(t.ComputedDistance),
		FinalDistance:    number(t.FinalDistance),
		IsApproved:       t.IsApproved,
		ApprovedBy:       t.ApprovedBy,
		ApprovedAt:       t.ApprovedAt,
		CreatedAt:        t.CreatedAt,
	}
}

func newViewResponse(v trip.View) *tripResponse {
	resp := newTripResponse(&v.Trip)
	resp.Surveyor = v.Surveyor
	return resp
}

func newViewResponses(views []trip.View) []*tripResponse {
	out := make([]*tripResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newViewResponse(v))
	}
	return out
}

type meterReadingResponse struct {
	ID         uuid.UUID     `json:"id"`
	SurveyorID uuid.UUID     `json:"surveyor_id"`
	Day        day.Day       `json:"day"`
	Session    meter.Session `json:"session"`
	Reading    number        `json:"reading"`
	PhotoRef   string        `json:"photo_ref"`
	CapturedAt time.Time     `json:"captured_at"`
}

func newMeterReadingResponse(r meter.MeterReading) meterReadingResponse {
	return meterReadingResponse{
		ID:         r.ID,
		SurveyorID: r.SurveyorID,
		Day:        r.Day,
		Session:    r.Session,
		Reading:    number(r.Reading),
		PhotoRef:   r.PhotoRef,
		CapturedAt: r.CapturedAt,
	}
}
