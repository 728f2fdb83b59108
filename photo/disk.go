package photo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/billbatista/fieldmiles/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DiskUploader writes photos under dir and hands out URLs below baseURL.
// The HTTP layer serves dir read-only at the same prefix.
type DiskUploader struct {
	dir     string
	baseURL string
	log     zerolog.Logger
}

func NewDiskUploader(dir, baseURL string) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating photo directory: %w", err)
	}
	return &DiskUploader{
		dir:     dir,
		baseURL: baseURL,
		log:     logger.WithComponent("photo"),
	}, nil
}

func (u *DiskUploader) Dir() string {
	return u.dir
}

func (u *DiskUploader) Upload(ctx context.Context, data []byte, ownerID uuid.UUID, category Category) (string, error) {
	if !category.Valid() {
		return "", uploadError(fmt.Errorf("%w: %q", ErrInvalidCategory, category))
	}
	if err := ctx.Err(); err != nil {
		return "", uploadError(err)
	}

	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		ext = ".bin"
	}
	name := uuid.NewString() + ext
	rel := filepath.Join(string(category), ownerID.String(), name)

	done := make(chan error, 1)
	go func() {
		done <- u.write(rel, data)
	}()

	select {
	case <-ctx.Done():
		u.log.Warn().Err(ctx.Err()).Str("path", rel).Msg("photo upload abandoned")
		return "", uploadError(ctx.Err())
	case err := <-done:
		if err != nil {
			return "", uploadError(err)
		}
	}

	ref, err := url.JoinPath(u.baseURL, string(category), ownerID.String(), name)
	if err != nil {
		return "", uploadError(err)
	}
	return ref, nil
}

func (u *DiskUploader) write(rel string, data []byte) error {
	path := filepath.Join(u.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
