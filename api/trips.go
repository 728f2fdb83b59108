package api

import (
	"net/http"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/middleware"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func caller(r *http.Request) trip.Caller {
	id, _ := middleware.GetIdentity(r.Context())
	return trip.Caller{ID: id.UserID, Role: id.Role}
}

// parseFilter reads surveyor_id, date, start_date and end_date from the
// query string.
func parseFilter(r *http.Request) (trip.Filter, error) {
	var f trip.Filter
	q := r.URL.Query()

	if v := q.Get("surveyor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, badRequest{msg: "invalid surveyor_id"}
		}
		f.SurveyorID = uuid.NullUUID{UUID: id, Valid: true}
	}

	for _, p := range []struct {
		name string
		dst  *day.Day
	}{
		{"date", &f.Date},
		{"start_date", &f.StartDate},
		{"end_date", &f.EndDate},
	} {
		if v := q.Get(p.name); v != "" {
			d, err := day.Parse(v)
			if err != nil {
				return f, err
			}
			*p.dst = d
		}
	}
	return f, nil
}

func (h *Handler) listTrips(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views, err := h.trips.List(r.Context(), caller(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newViewResponses(views))
}

func (h *Handler) getTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.trips.Get(r.Context(), caller(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newViewResponse(*view))
}

type finalDistanceRequest struct {
	FinalDistance decimal.NullDecimal `json:"final_distance"`
}

func (h *Handler) setFinalDistance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req finalDistanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !req.FinalDistance.Valid {
		h.writeError(w, r, badRequest{msg: "final_distance is required"})
		return
	}

	t, err := h.trips.SetFinalDistance(r.Context(), id, req.FinalDistance.Decimal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	admin, _ := middleware.GetIdentity(r.Context())
	h.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.TripFinalDistanceSet),
		eventlogger.WithData(t),
		eventlogger.WithMetadata(map[string]string{"admin_id": admin.UserID.String()}),
	))
	writeJSON(w, http.StatusOK, newTripResponse(t))
}

func (h *Handler) toggleApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	admin, _ := middleware.GetIdentity(r.Context())

	t, err := h.trips.ToggleApproval(r.Context(), id, admin.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.TripApprovalToggled),
		eventlogger.WithData(t),
		eventlogger.WithMetadata(map[string]string{"admin_id": admin.UserID.String()}),
	))
	writeJSON(w, http.StatusOK, newTripResponse(t))
}

type reconcileRequest struct {
	SurveyorID uuid.UUID `json:"surveyor_id"`
	Date       day.Day   `json:"date"`
}

func (h *Handler) reconcileDay(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SurveyorID == uuid.Nil || req.Date.IsZero() {
		h.writeError(w, r, badRequest{msg: "surveyor_id and date are required"})
		return
	}

	t, err := h.ingest.Retrigger(r.Context(), req.SurveyorID, req.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTripResponse(t))
}
