package photo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestDiskUploaderUpload(t *testing.T) {
	dir := t.TempDir()
	u, err := NewDiskUploader(dir, "/photos")
	require.NoError(t, err)

	owner := uuid.New()
	ref, err := u.Upload(context.Background(), jpeg, owner, BikeMeter)
	require.NoError(t, err)

	prefix := "/photos/bike-meter/" + owner.String() + "/"
	require.True(t, strings.HasPrefix(ref, prefix), "unexpected ref %s", ref)
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	stored, err := os.ReadFile(filepath.Join(dir, "bike-meter", owner.String(), strings.TrimPrefix(ref, prefix)))
	require.NoError(t, err)
	assert.Equal(t, jpeg, stored)
}

func TestDiskUploaderAbsoluteBaseURL(t *testing.T) {
	u, err := NewDiskUploader(t.TempDir(), "https://cdn.example.com/field")
	require.NoError(t, err)

	ref, err := u.Upload(context.Background(), []byte("plain bytes"), uuid.New(), Attendance)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "https://cdn.example.com/field/attendance/"))
	assert.True(t, strings.HasSuffix(ref, ".bin"))
}

func TestDiskUploaderFailures(t *testing.T) {
	u, err := NewDiskUploader(t.TempDir(), "/photos")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), jpeg, uuid.New(), Category("selfie"))
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = u.Upload(ctx, jpeg, uuid.New(), BikeMeter)
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.ErrorIs(t, err, context.Canceled)
}
