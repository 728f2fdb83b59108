package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/billbatista/fieldmiles/auth"
	"github.com/billbatista/fieldmiles/session"
	"github.com/billbatista/fieldmiles/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

type fixture struct {
	tokens   *auth.JWTService
	sessions session.Repository
	users    user.Repository
	handler  http.Handler
}

func newFixture(t *testing.T, guard func(http.Handler) http.Handler) *fixture {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "auth.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions, err := session.NewBoltRepository(db, time.Hour)
	require.NoError(t, err)
	users, err := user.NewBoltRepository(db)
	require.NoError(t, err)

	f := &fixture{
		tokens:   auth.NewJWTService("secret", time.Hour),
		sessions: sessions,
		users:    users,
	}
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentity(r.Context())
		if !ok {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(string(id.Role) + ":" + id.UserID.String()))
	})
	f.handler = Authenticate(f.tokens, sessions, users)(guard(echo))
	return f
}

func passthrough(next http.Handler) http.Handler { return next }

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) register(t *testing.T, email string, role user.Role) (*user.User, string) {
	t.Helper()
	u, err := f.users.Register(context.Background(), user.Registration{Email: email, Password: "pw", Role: role})
	require.NoError(t, err)
	token, _, err := f.tokens.GenerateToken(u.ID, u.Role)
	require.NoError(t, err)
	return u, token
}

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthenticateBearer(t *testing.T) {
	f := newFixture(t, RequireAuth)
	rider, token := f.register(t, "r@example.com", user.RoleSurveyor)

	rec := f.serve(bearer(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "surveyor:"+rider.ID.String(), rec.Body.String())
}

func TestAuthenticateBearerDisabledUser(t *testing.T) {
	f := newFixture(t, RequireAdmin)
	admin, token := f.register(t, "a@example.com", user.RoleAdmin)

	assert.Equal(t, http.StatusOK, f.serve(bearer(token)).Code)

	require.NoError(t, f.users.SetActive(context.Background(), admin.ID, false))
	rec := f.serve(bearer(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a still-valid token of a disabled admin is refused")

	// a token for a user that was never registered carries no identity
	ghost, _, err := f.tokens.GenerateToken(uuid.New(), user.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.serve(bearer(ghost)).Code)
}

func TestAuthenticateSessionCookie(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, RequireAdmin)
	admin, err := f.users.Register(ctx, user.Registration{Email: "a@example.com", Password: "pw", Role: user.RoleAdmin})
	require.NoError(t, err)
	sess, err := f.sessions.Create(ctx, admin.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.Token})
	rec := f.serve(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin:"+admin.ID.String(), rec.Body.String())

	require.NoError(t, f.users.SetActive(ctx, admin.ID, false))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.Token})
	assert.Equal(t, http.StatusUnauthorized, f.serve(req).Code)
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	f := newFixture(t, passthrough)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, "anonymous", f.serve(req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Equal(t, "anonymous", f.serve(req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale"})
	rec := f.serve(req)
	assert.Equal(t, "anonymous", rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestRequireGuards(t *testing.T) {
	f := newFixture(t, RequireAdmin)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())

	_, token := f.register(t, "r@example.com", user.RoleSurveyor)
	rec = f.serve(bearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"admin role required"}`, rec.Body.String())
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	h := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	alice := WithIdentity(context.Background(), Identity{UserID: uuid.New(), Role: user.RoleSurveyor})
	bob := WithIdentity(context.Background(), Identity{UserID: uuid.New(), Role: user.RoleSurveyor})

	codes := func(ctx context.Context) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/readings", nil).WithContext(ctx))
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, codes(alice))
	assert.Equal(t, http.StatusNoContent, codes(alice))
	assert.Equal(t, http.StatusTooManyRequests, codes(alice))
	assert.Equal(t, http.StatusNoContent, codes(bob), "limits are per caller")
}
