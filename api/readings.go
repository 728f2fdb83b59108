package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/ingest"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type readingResponse struct {
	Reading        meterReadingResponse `json:"reading"`
	Trip           *tripResponse        `json:"trip,omitempty"`
	Reconciliation string               `json:"reconciliation"`
}

func newReadingResponse(res *ingest.Result) readingResponse {
	resp := readingResponse{
		Reading:        newMeterReadingResponse(res.Reading),
		Trip:           newTripResponse(res.Reconciliation.Trip),
		Reconciliation: "ok",
	}
	if !res.Reconciliation.OK() {
		resp.Reconciliation = "pending"
	}
	return resp
}

// submitReading takes a multipart form: session, photo, and optionally
// reading, day (YYYY-MM-DD) and captured_at (RFC 3339).
func (h *Handler) submitReading(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.GetIdentity(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPhotoBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxPhotoBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, err)
			return
		}
		h.writeError(w, r, badRequest{msg: "invalid multipart form"})
		return
	}

	sub, err := parseSubmission(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sub.SurveyorID = id.UserID

	res, err := h.ingest.Submit(r.Context(), sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReadingResponse(res))
}

func parseSubmission(r *http.Request) (ingest.Submission, error) {
	var sub ingest.Submission

	s, err := meter.ParseSession(strings.TrimSpace(r.FormValue("session")))
	if err != nil {
		return sub, err
	}
	sub.Session = s

	if v := strings.TrimSpace(r.FormValue("reading")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return sub, badRequest{msg: "reading must be a number"}
		}
		sub.Reading = decimal.NewNullDecimal(d)
	}
	if v := strings.TrimSpace(r.FormValue("day")); v != "" {
		if sub.Day, err = day.Parse(v); err != nil {
			return sub, err
		}
	}
	if v := strings.TrimSpace(r.FormValue("captured_at")); v != "" {
		if sub.CapturedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return sub, badRequest{msg: "captured_at must be an RFC 3339 timestamp"}
		}
	}

	file, _, err := r.FormFile("photo")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return sub, ingest.ErrEmptyPhoto
	case err != nil:
		return sub, badRequest{msg: "invalid photo"}
	}
	defer file.Close()

	if sub.Photo, err = io.ReadAll(file); err != nil {
		return sub, err
	}
	return sub, nil
}

// presentDecimal records whether the field appeared in the body at all, so
// an omitted reading is told apart from an explicit null.
type presentDecimal struct {
	Set   bool
	Value decimal.NullDecimal
}

func (p *presentDecimal) UnmarshalJSON(b []byte) error {
	p.Set = true
	return p.Value.UnmarshalJSON(b)
}

// correctionRequest needs "reading" to be present; null clears the value.
type correctionRequest struct {
	Reading presentDecimal `json:"reading"`
}

func (h *Handler) correctReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req correctionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if !req.Reading.Set {
		h.writeError(w, r, badRequest{msg: "reading is required"})
		return
	}

	res, err := h.ingest.Correct(r.Context(), id, req.Reading.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReadingResponse(res))
}

func (h *Handler) getReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reading, err := h.ingest.Reading(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMeterReadingResponse(*reading))
}

func (h *Handler) deleteReading(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.ingest.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, badRequest{msg: "invalid id"}
	}
	return id, nil
}
