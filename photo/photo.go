package photo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Category groups uploaded photos by what they prove.
type Category string

const (
	Attendance Category = "attendance"
	BikeMeter  Category = "bike-meter"
)

var (
	ErrUploadFailed    = errors.New("photo upload failed")
	ErrInvalidCategory = errors.New("unknown photo category")
)

func (c Category) Valid() bool {
	return c == Attendance || c == BikeMeter
}

// Uploader stores photo bytes and returns a reference to them. Every error
// it returns wraps ErrUploadFailed.
type Uploader interface {
	Upload(ctx context.Context, data []byte, ownerID uuid.UUID, category Category) (string, error)
}

func uploadError(err error) error {
	return fmt.Errorf("%w: %w", ErrUploadFailed, err)
}
