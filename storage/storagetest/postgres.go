// Package storagetest opens a migrated Postgres database for repository
// tests. Tests using it skip unless FIELDMILES_TEST_DSN is set.
package storagetest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/billbatista/fieldmiles/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const DSNEnv = "FIELDMILES_TEST_DSN"

// Postgres returns a handle whose search_path points at a fresh schema, so
// packages tested in parallel never see each other's rows. The schema is
// dropped when the test ends.
func Postgres(t testing.TB) *sql.DB {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	ctx := context.Background()

	admin, err := storage.OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { admin.Close() })

	schema := "fieldmiles_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		if _, err := admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE"); err != nil {
			t.Logf("dropping %s: %v", schema, err)
		}
	})

	scoped, err := withSearchPath(dsn, schema)
	require.NoError(t, err)
	db, err := storage.OpenPostgres(ctx, scoped)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(ctx, db))
	return db
}

// withSearchPath handles both URL and key=value connection strings. lib/pq
// forwards unknown keys as run-time parameters.
func withSearchPath(dsn, schema string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", DSNEnv, err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return dsn + " search_path=" + schema, nil
}

// InsertUser adds a bare user row for foreign keys and returns its id.
func InsertUser(t testing.TB, db *sql.DB, role string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO users (id, name, email, role, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, 'x', $5)`,
		id, "user "+id.String()[:8], id.String()+"@example.com", role, time.Now().UTC(),
	)
	require.NoError(t, err)
	return id
}
