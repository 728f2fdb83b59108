package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	schema, err := migrations.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.Contains(t, string(schema), "UNIQUE (surveyor_id, reading_day, session)")
	assert.Contains(t, string(schema), "UNIQUE (surveyor_id, trip_date)")
}

func TestOpenBoltCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "fieldmiles.db")
	db, err := OpenBolt(path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, path, db.Path())
}
