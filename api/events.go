package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/billbatista/fieldmiles/eventlogger"
)

// listEvents serves the audit trail, newest first. Filters: type, since
// (RFC 3339) and limit.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.audit.Find(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func parseEventQuery(r *http.Request) (eventlogger.Query, error) {
	params := r.URL.Query()
	q := eventlogger.Query{Type: params.Get("type")}

	if v := params.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, badRequest{msg: "since must be an RFC 3339 timestamp"}
		}
		q.Since = since
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return q, badRequest{msg: "limit must be a positive integer"}
		}
		q.Limit = n
	}
	return q, nil
}
