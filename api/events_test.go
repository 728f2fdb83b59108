package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventJSON struct {
	ID        string            `json:"id"`
	Type      string            `json:"event_type"`
	Data      json.RawMessage   `json:"event_data"`
	Metadata  map[string]string `json:"event_metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

func TestListEvents(t *testing.T) {
	s := newTestServer(t)
	_, riderToken := s.register(t, "rider@example.com", user.RoleSurveyor)
	admin, adminToken := s.register(t, "admin@example.com", user.RoleAdmin)

	_, _ = s.submit(t, riderToken, map[string]string{"session": "morning", "reading": "10", "day": "2026-10-17"}, jpeg)
	_, body := s.submit(t, riderToken, map[string]string{"session": "evening", "reading": "22", "day": "2026-10-17"}, jpeg)
	var ev readingJSON
	require.NoError(t, json.Unmarshal(body, &ev))
	resp, _ := s.doJSON(t, http.MethodPut, "/api/trips/"+ev.Trip.ID+"/final-distance", adminToken, map[string]any{"final_distance": 11})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.doJSON(t, http.MethodGet, "/api/events?type="+eventlogger.TripFinalDistanceSet, adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var events []eventJSON
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, admin.ID.String(), events[0].Metadata["admin_id"])

	resp, body = s.doJSON(t, http.MethodGet, "/api/events?limit=3", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events = nil
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 3)
	assert.Equal(t, eventlogger.TripFinalDistanceSet, events[0].Type, "newest first")
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].CreatedAt.After(events[i-1].CreatedAt))
	}

	resp, body = s.doJSON(t, http.MethodGet, "/api/events?since="+time.Now().Add(time.Hour).UTC().Format(time.RFC3339), adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = s.doJSON(t, http.MethodGet, "/api/events", riderToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.doJSON(t, http.MethodGet, "/api/events?limit=lots", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = s.doJSON(t, http.MethodGet, "/api/events?since=yesterday", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
