package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/ingest"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/photo"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/billbatista/fieldmiles/user"
)

// badRequest carries a client-facing validation message.
type badRequest struct {
	msg string
}

func (e badRequest) Error() string {
	return e.msg
}

type errorMapping struct {
	err    error
	status int
}

// domainErrors is checked in order; the sentinel's own message is what the
// client sees.
var domainErrors = []errorMapping{
	{meter.ErrDuplicateSubmission, http.StatusConflict},
	{user.ErrEmailExists, http.StatusConflict},
	{trip.ErrNothingToApprove, http.StatusConflict},
	{ingest.ErrInactiveSurveyor, http.StatusForbidden},
	{ingest.ErrUnknownSurveyor, http.StatusForbidden},
	{photo.ErrUploadFailed, http.StatusBadGateway},
	{trip.ErrTripNotFound, http.StatusNotFound},
	{meter.ErrReadingNotFound, http.StatusNotFound},
	{user.ErrUserNotFound, http.StatusNotFound},
	{trip.ErrReconciliationFailed, http.StatusServiceUnavailable},
	{meter.ErrInvalidSession, http.StatusBadRequest},
	{meter.ErrNegativeReading, http.StatusBadRequest},
	{ingest.ErrEmptyPhoto, http.StatusBadRequest},
	{trip.ErrNegativeDistance, http.StatusBadRequest},
	{day.ErrInvalidDay, http.StatusBadRequest},
	{user.ErrInvalidEmail, http.StatusBadRequest},
	{user.ErrBlankPassword, http.StatusBadRequest},
	{user.ErrInvalidRole, http.StatusBadRequest},
}

func statusFor(err error) (int, string) {
	var br badRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest, br.msg
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, "request body too large"
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			return m.status, m.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{msg: "invalid JSON body: " + err.Error()}
	}
	return nil
}
