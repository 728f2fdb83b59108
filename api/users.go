package api

import (
	"net/http"

	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/user"
)

type registerRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Role     user.Role `json:"role"`
	Project  string    `json:"project"`
	Location string    `json:"location"`
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.users.Register(r.Context(), user.Registration(req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.UserRegistered),
		eventlogger.WithData(map[string]string{
			"user_id": u.ID.String(),
			"email":   u.Email,
			"role":    string(u.Role),
		}),
	))
	writeJSON(w, http.StatusCreated, u)
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) setUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req activeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Active == nil {
		h.writeError(w, r, badRequest{msg: "active is required"})
		return
	}

	if err := h.users.SetActive(r.Context(), id, *req.Active); err != nil {
		h.writeError(w, r, err)
		return
	}
	if !*req.Active {
		if err := h.sessions.DeleteByUserID(r.Context(), id); err != nil {
			h.log.Warn().Err(err).Str("user_id", id.String()).Msg("failed to drop sessions of disabled user")
		}
	}
	h.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.UserActivationChanged),
		eventlogger.WithData(map[string]any{
			"user_id": id.String(),
			"active":  *req.Active,
		}),
	))
	w.WriteHeader(http.StatusNoContent)
}
