package api

import (
	"net/http"
	"time"

	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/middleware"
	"github.com/billbatista/fieldmiles/session"
	"github.com/billbatista/fieldmiles/user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if u == nil || h.users.VerifyPassword(u.PasswordHash, req.Password) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}
	if !u.Active {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "account is disabled"})
		return
	}

	sess, err := h.sessions.Create(ctx, u.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, expiresAt, err := h.tokens.GenerateToken(u.ID, u.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	h.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.UserLoggedIn),
		eventlogger.WithData(map[string]string{
			"user_id":    u.ID.String(),
			"email":      u.Email,
			"session_id": sess.ID.String(),
		}),
	))

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, User: u})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.log.Warn().Err(err).Msg("failed to delete session")
		}
	}
	middleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
