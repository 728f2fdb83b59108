package meter

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/storage/storagetest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

type backend struct {
	name string
	open func(t *testing.T) (Repository, func() uuid.UUID)
}

// backends runs every repository test against bbolt, and against Postgres
// when FIELDMILES_TEST_DSN is set. The second value mints surveyor ids the
// backend's foreign keys accept.
var backends = []backend{
	{"bolt", func(t *testing.T) (Repository, func() uuid.UUID) {
		return newTestRepository(t), uuid.New
	}},
	{"postgres", func(t *testing.T) (Repository, func() uuid.UUID) {
		db := storagetest.Postgres(t)
		return NewRepository(db), func() uuid.UUID { return storagetest.InsertUser(t, db, "surveyor") }
	}},
}

func forEachBackend(t *testing.T, test func(t *testing.T, repo Repository, newSurveyor func() uuid.UUID)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			repo, newSurveyor := b.open(t)
			test(t, repo, newSurveyor)
		})
	}
}

func newTestRepository(t *testing.T) *boltRepository {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "meter.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewBoltRepository(db)
	require.NoError(t, err)
	return repo
}

func newReading(surveyorID uuid.UUID, d day.Day, s Session, value string) MeterReading {
	m := MeterReading{
		ID:         uuid.New(),
		SurveyorID: surveyorID,
		Day:        d,
		Session:    s,
		PhotoRef:   "/photos/bike-meter/" + surveyorID.String() + "/x.jpg",
		CapturedAt: time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
	}
	if value != "" {
		m.Reading = decimal.NewNullDecimal(decimal.RequireFromString(value))
	}
	return m
}

func TestInsertRejectsDuplicateSlot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository, newSurveyor func() uuid.UUID) {
		ctx := context.Background()
		surveyor := newSurveyor()
		d := day.Date(2026, 10, 17)

		require.NoError(t, repo.Insert(ctx, newReading(surveyor, d, Evening, "155.5")))

		err := repo.Insert(ctx, newReading(surveyor, d, Evening, "160"))
		assert.ErrorIs(t, err, ErrDuplicateSubmission)

		// other slots stay open
		assert.NoError(t, repo.Insert(ctx, newReading(surveyor, d, Morning, "120")))
		assert.NoError(t, repo.Insert(ctx, newReading(surveyor, d.AddDays(1), Evening, "170")))
		assert.NoError(t, repo.Insert(ctx, newReading(newSurveyor(), d, Evening, "10")))
	})
}

func TestConcurrentInsertAdmitsOne(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository, newSurveyor func() uuid.UUID) {
		ctx := context.Background()
		surveyor := newSurveyor()
		d := day.Date(2026, 10, 17)

		const submitters = 8
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			accepted   int
			duplicates int
		)
		for i := 0; i < submitters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Insert(ctx, newReading(surveyor, d, Morning, "100"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					accepted++
				case errors.Is(err, ErrDuplicateSubmission):
					duplicates++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, accepted)
		assert.Equal(t, submitters-1, duplicates)
	})
}

func TestUpdateValueAndList(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository, newSurveyor func() uuid.UUID) {
		ctx := context.Background()
		surveyor := newSurveyor()
		d := day.Date(2026, 10, 17)

		morning := newReading(surveyor, d, Morning, "120")
		evening := newReading(surveyor, d, Evening, "")
		require.NoError(t, repo.Insert(ctx, morning))
		require.NoError(t, repo.Insert(ctx, evening))

		exists, err := repo.Exists(ctx, surveyor, d, Evening)
		require.NoError(t, err)
		assert.True(t, exists)

		updated, err := repo.UpdateValue(ctx, evening.ID, decimal.NewNullDecimal(decimal.RequireFromString("155.5")))
		require.NoError(t, err)
		assert.True(t, updated.Reading.Decimal.Equal(decimal.RequireFromString("155.5")))

		readings, err := repo.ListForDay(ctx, surveyor, d)
		require.NoError(t, err)
		assert.Len(t, readings, 2)

		_, err = repo.UpdateValue(ctx, uuid.New(), decimal.NullDecimal{})
		assert.ErrorIs(t, err, ErrReadingNotFound)
	})
}

func TestDeleteFreesSlot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo Repository, newSurveyor func() uuid.UUID) {
		ctx := context.Background()
		m := newReading(newSurveyor(), day.Date(2026, 10, 17), Morning, "1")
		require.NoError(t, repo.Insert(ctx, m))

		require.NoError(t, repo.Delete(ctx, m.ID))
		_, err := repo.GetByID(ctx, m.ID)
		assert.ErrorIs(t, err, ErrReadingNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, m.ID), ErrReadingNotFound)

		exists, err := repo.Exists(ctx, m.SurveyorID, m.Day, m.Session)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestParseSession(t *testing.T) {
	s, err := ParseSession("morning")
	require.NoError(t, err)
	assert.Equal(t, Morning, s)

	_, err = ParseSession("noon")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue(decimal.NullDecimal{}))
	assert.NoError(t, ValidateValue(decimal.NewNullDecimal(decimal.Zero)))
	assert.ErrorIs(t, ValidateValue(decimal.NewNullDecimal(decimal.NewFromInt(-1))), ErrNegativeReading)
}
