package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/photo"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/billbatista/fieldmiles/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

var photoBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0}

type fakeUploader struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	calls int
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, ownerID uuid.UUID, category photo.Category) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "/photos/" + string(category) + "/" + ownerID.String() + "/p.jpg", nil
}

type failingReconciler struct{}

func (failingReconciler) Reconcile(ctx context.Context, r meter.MeterReading) (*trip.Trip, error) {
	return nil, trip.ErrReconciliationFailed
}

type recordingRequeue struct {
	queued []meter.MeterReading
}

func (q *recordingRequeue) Enqueue(r meter.MeterReading) bool {
	q.queued = append(q.queued, r)
	return true
}

type recordingSink struct {
	mu     sync.Mutex
	events []eventlogger.Event
}

func (s *recordingSink) Log(e eventlogger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	svc      *Service
	readings meter.Repository
	users    user.Repository
	trips    *trip.Service
	uploader *fakeUploader
	sink     *recordingSink
	surveyor *user.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "ingest.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	readings, err := meter.NewBoltRepository(db)
	require.NoError(t, err)
	users, err := user.NewBoltRepository(db)
	require.NoError(t, err)
	store, err := trip.NewBoltStore(db)
	require.NoError(t, err)

	surveyor, err := users.Register(context.Background(), user.Registration{
		Email:    "rider@example.com",
		Password: "secret",
		Name:     "Rider",
	})
	require.NoError(t, err)

	f := &fixture{
		readings: readings,
		users:    users,
		trips:    trip.NewService(store),
		uploader: &fakeUploader{},
		sink:     &recordingSink{},
		surveyor: surveyor,
	}
	opts = append([]Option{WithEvents(f.sink)}, opts...)
	f.svc = NewService(readings, users, f.uploader, f.trips, opts...)
	return f
}

func (f *fixture) submission(s meter.Session, value string) Submission {
	sub := Submission{
		SurveyorID: f.surveyor.ID,
		Day:        day.Date(2026, 10, 17),
		Session:    s,
		Photo:      photoBytes,
		CapturedAt: time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
	}
	if value != "" {
		sub.Reading = decimal.NewNullDecimal(decimal.RequireFromString(value))
	}
	return sub
}

func TestSubmitReconcilesDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Submit(ctx, f.submission(meter.Morning, "120.0"))
	require.NoError(t, err)
	require.True(t, res.Reconciliation.OK())
	assert.Equal(t, "/photos/bike-meter/"+f.surveyor.ID.String()+"/p.jpg", res.Reading.PhotoRef)
	assert.False(t, res.Reconciliation.Trip.ComputedDistance.Valid)

	res, err = f.svc.Submit(ctx, f.submission(meter.Evening, "155.5"))
	require.NoError(t, err)
	require.True(t, res.Reconciliation.OK())
	tr := res.Reconciliation.Trip
	assert.True(t, tr.ComputedDistance.Decimal.Equal(decimal.RequireFromString("35.5")))
	assert.True(t, tr.FinalDistance.Decimal.Equal(decimal.RequireFromString("35.5")))

	assert.Equal(t, []string{
		eventlogger.ReadingSubmitted, eventlogger.TripReconciled,
		eventlogger.ReadingSubmitted, eventlogger.TripReconciled,
	}, f.sink.types())
}

func TestSubmitDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Submit(ctx, f.submission(meter.Morning, "120"))
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.submission(meter.Morning, "121"))
	assert.ErrorIs(t, err, meter.ErrDuplicateSubmission)
	assert.Equal(t, 1, f.uploader.calls, "the pre-check must run before uploading")

	views, err := f.trips.List(ctx, trip.Caller{Role: user.RoleAdmin}, trip.Filter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].MorningReading.Decimal.Equal(decimal.NewFromInt(120)))
}

func TestSubmitConcurrentDuplicatesAdmitOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(ctx, f.submission(meter.Evening, "50"))
		}()
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, meter.ErrDuplicateSubmission)
	}
	assert.Equal(t, 1, accepted)
}

func TestSubmitRejectsSurveyor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sub := f.submission(meter.Morning, "1")
	sub.SurveyorID = uuid.New()
	_, err := f.svc.Submit(ctx, sub)
	assert.ErrorIs(t, err, ErrUnknownSurveyor)

	require.NoError(t, f.users.SetActive(ctx, f.surveyor.ID, false))
	_, err = f.svc.Submit(ctx, f.submission(meter.Morning, "1"))
	assert.ErrorIs(t, err, ErrInactiveSurveyor)

	admin, err := f.users.Register(ctx, user.Registration{Email: "boss@example.com", Password: "x", Role: user.RoleAdmin})
	require.NoError(t, err)
	sub = f.submission(meter.Morning, "1")
	sub.SurveyorID = admin.ID
	_, err = f.svc.Submit(ctx, sub)
	assert.ErrorIs(t, err, ErrInactiveSurveyor)

	assert.Zero(t, f.uploader.calls)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		edit func(*Submission)
		want error
	}{
		{"unknown session", func(s *Submission) { s.Session = "noon" }, meter.ErrInvalidSession},
		{"missing photo", func(s *Submission) { s.Photo = nil }, ErrEmptyPhoto},
		{"negative reading", func(s *Submission) { s.Reading = decimal.NewNullDecimal(decimal.NewFromInt(-1)) }, meter.ErrNegativeReading},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := f.submission(meter.Morning, "10")
			tc.edit(&sub)
			_, err := f.svc.Submit(context.Background(), sub)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSubmitUploadFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.uploader.err = errors.New("bucket unreachable")

	_, err := f.svc.Submit(ctx, f.submission(meter.Morning, "10"))
	assert.ErrorIs(t, err, photo.ErrUploadFailed)

	taken, err := f.readings.Exists(ctx, f.surveyor.ID, day.Date(2026, 10, 17), meter.Morning)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestSubmitUploadTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithUploadTimeout(10*time.Millisecond))
	f.uploader.delay = time.Second

	_, err := f.svc.Submit(ctx, f.submission(meter.Morning, "10"))
	assert.ErrorIs(t, err, photo.ErrUploadFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitDerivesDayFromCapture(t *testing.T) {
	f := newFixture(t)
	sub := f.submission(meter.Morning, "")
	sub.Day = day.Day{}
	sub.CapturedAt = time.Date(2026, 10, 18, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))

	res, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", res.Reading.Day.String())
	assert.False(t, res.Reading.Reading.Valid)
}

func TestSubmitReconcileFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	q := &recordingRequeue{}
	f := newFixture(t, WithRequeue(q))
	f.svc.reconciler = failingReconciler{}

	res, err := f.svc.Submit(ctx, f.submission(meter.Morning, "10"))
	require.NoError(t, err)
	assert.False(t, res.Reconciliation.OK())
	assert.ErrorIs(t, res.Reconciliation.Err, trip.ErrReconciliationFailed)

	stored, err := f.readings.GetByID(ctx, res.Reading.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Reading.ID, stored.ID)

	require.Len(t, q.queued, 1)
	assert.Equal(t, res.Reading.ID, q.queued[0].ID)
	assert.Contains(t, f.sink.types(), eventlogger.TripReconcileFailed)
}

func TestCorrectReconciles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.svc.Submit(ctx, f.submission(meter.Morning, "100"))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.submission(meter.Evening, "130"))
	require.NoError(t, err)

	res, err := f.svc.Correct(ctx, m.Reading.ID, decimal.NewNullDecimal(decimal.NewFromInt(110)))
	require.NoError(t, err)
	tr := res.Reconciliation.Trip
	assert.True(t, tr.MorningReading.Decimal.Equal(decimal.NewFromInt(110)))
	assert.True(t, tr.ComputedDistance.Decimal.Equal(decimal.NewFromInt(20)))
	assert.True(t, tr.FinalDistance.Decimal.Equal(decimal.NewFromInt(30)), "final distance is seeded once")

	_, err = f.svc.Correct(ctx, uuid.New(), decimal.NullDecimal{})
	assert.ErrorIs(t, err, meter.ErrReadingNotFound)

	_, err = f.svc.Correct(ctx, m.Reading.ID, decimal.NewNullDecimal(decimal.NewFromInt(-1)))
	assert.ErrorIs(t, err, meter.ErrNegativeReading)
}

func TestRetriggerAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := day.Date(2026, 10, 17)

	_, err := f.svc.Retrigger(ctx, f.surveyor.ID, d)
	assert.ErrorIs(t, err, meter.ErrReadingNotFound)

	m, err := f.svc.Submit(ctx, f.submission(meter.Morning, "5"))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.submission(meter.Evening, "9"))
	require.NoError(t, err)

	tr, err := f.svc.Retrigger(ctx, f.surveyor.ID, d)
	require.NoError(t, err)
	assert.True(t, tr.ComputedDistance.Decimal.Equal(decimal.NewFromInt(4)))

	require.NoError(t, f.svc.Delete(ctx, m.Reading.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, m.Reading.ID), meter.ErrReadingNotFound)

	views, err := f.trips.List(ctx, trip.Caller{ID: f.surveyor.ID, Role: user.RoleSurveyor}, trip.Filter{Date: d})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].MorningReading.Decimal.Equal(decimal.NewFromInt(5)), "the trip keeps its copy")
	assert.Equal(t, m.Reading.ID, views[0].MorningReadingID.UUID)

	// the slot is free again after a delete
	_, err = f.svc.Submit(ctx, f.submission(meter.Morning, "6"))
	require.NoError(t, err)
}
