package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/billbatista/fieldmiles/auth"
	"github.com/billbatista/fieldmiles/logger"
	"github.com/billbatista/fieldmiles/session"
	"github.com/billbatista/fieldmiles/user"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID uuid.UUID
	Role   user.Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == user.RoleAdmin
}

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Authenticate resolves the caller from a bearer token or, failing that,
// the session cookie. Either way the user must still exist and be active.
// Requests without valid credentials pass through anonymous; RequireAuth
// decides whether that is acceptable.
func Authenticate(tokens *auth.JWTService, sessions session.Repository, users UserLookup) func(http.Handler) http.Handler {
	log := logger.WithComponent("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header := r.Header.Get("Authorization"); header != "" {
				token, ok := strings.CutPrefix(header, "Bearer ")
				if !ok {
					log.Debug().Msg("unsupported authorization scheme")
					next.ServeHTTP(w, r)
					return
				}
				claims, err := tokens.ValidateToken(token)
				if err != nil {
					log.Debug().Err(err).Msg("rejected bearer token")
					next.ServeHTTP(w, r)
					return
				}
				u, ok := activeUser(r.Context(), users, claims.UserID, log)
				if !ok {
					next.ServeHTTP(w, r)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{UserID: u.ID, Role: u.Role})))
				return
			}

			cookie, err := r.Cookie(session.CookieName)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessions.GetByToken(r.Context(), cookie.Value)
			if err != nil {
				log.Debug().Err(err).Msg("invalid/expired session")
				ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			u, ok := activeUser(r.Context(), users, sess.UserID, log)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{UserID: u.ID, Role: u.Role})))
		})
	}
}

// activeUser loads the caller so that a disabled account or a role change
// takes effect before its token expires.
func activeUser(ctx context.Context, users UserLookup, id uuid.UUID, log zerolog.Logger) (*user.User, bool) {
	u, err := users.GetByID(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("user_id", id.String()).Msg("failed to load caller")
		return nil, false
	}
	if u == nil || !u.Active {
		log.Debug().Str("user_id", id.String()).Msg("caller is unknown or disabled")
		return nil, false
	}
	return u, true
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetIdentity(r.Context()); !ok {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentity(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !id.IsAdmin() {
			respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   session.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
