package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/logger"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/metrics"
	"github.com/billbatista/fieldmiles/photo"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/billbatista/fieldmiles/user"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSurveyor  = errors.New("surveyor not found")
	ErrInactiveSurveyor = errors.New("surveyor is not active")
	ErrEmptyPhoto       = errors.New("a photo of the odometer is required")
)

const DefaultUploadTimeout = 10 * time.Second

// Submission is one odometer capture from the mobile app. A zero Day is
// derived from CapturedAt.
type Submission struct {
	SurveyorID uuid.UUID
	Day        day.Day
	Session    meter.Session
	Reading    decimal.NullDecimal
	Photo      []byte
	CapturedAt time.Time
}

// Outcome reports the reconciliation half of a submission. A non-nil Err
// means the reading is stored but its trip is stale until a retry lands.
type Outcome struct {
	Trip *trip.Trip
	Err  error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

type Result struct {
	Reading        meter.MeterReading
	Reconciliation Outcome
}

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, r meter.MeterReading) (*trip.Trip, error)
}

type Requeuer interface {
	Enqueue(r meter.MeterReading) bool
}

type Service struct {
	readings      meter.Repository
	users         Users
	uploader      photo.Uploader
	reconciler    Reconciler
	requeue       Requeuer
	events        eventlogger.Sink
	uploadTimeout time.Duration
	now           func() time.Time
	log           zerolog.Logger
}

type Option func(*Service)

func WithRequeue(q Requeuer) Option {
	return func(s *Service) {
		s.requeue = q
	}
}

func WithEvents(sink eventlogger.Sink) Option {
	return func(s *Service) {
		s.events = sink
	}
}

func WithUploadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.uploadTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(readings meter.Repository, users Users, uploader photo.Uploader, reconciler Reconciler, opts ...Option) *Service {
	s := &Service{
		readings:      readings,
		users:         users,
		uploader:      uploader,
		reconciler:    reconciler,
		events:        eventlogger.Discard,
		uploadTimeout: DefaultUploadTimeout,
		now:           time.Now,
		log:           logger.WithComponent("ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores a reading and folds it into the surveyor's trip. The error
// return covers the storage half only; reconciliation problems are carried
// in Result.Reconciliation and the reading is handed to the requeue worker.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	r, err := s.store(ctx, sub)
	if err != nil {
		session := string(sub.Session)
		if !sub.Session.Valid() {
			session = "unknown"
		}
		metrics.ReadingsSubmitted.WithLabelValues(session, resultLabel(err)).Inc()
		return nil, err
	}
	metrics.ReadingsSubmitted.WithLabelValues(string(r.Session), "accepted").Inc()
	s.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.ReadingSubmitted),
		eventlogger.WithData(r),
	))

	res := &Result{Reading: *r}
	t, err := s.reconciler.Reconcile(ctx, *r)
	if err != nil {
		res.Reconciliation.Err = err
		s.log.Error().Err(err).
			Str("reading_id", r.ID.String()).
			Str("surveyor_id", r.SurveyorID.String()).
			Msg("reading stored but trip reconciliation failed")
		s.events.Log(eventlogger.NewEvent(
			eventlogger.WithType(eventlogger.TripReconcileFailed),
			eventlogger.WithData(map[string]string{
				"reading_id": r.ID.String(),
				"error":      err.Error(),
			}),
		))
		if s.requeue != nil {
			s.requeue.Enqueue(*r)
		}
		return res, nil
	}

	res.Reconciliation.Trip = t
	s.logReconciled(t, r.ID)
	return res, nil
}

func (s *Service) store(ctx context.Context, sub Submission) (*meter.MeterReading, error) {
	if !sub.Session.Valid() {
		return nil, fmt.Errorf("%w: %q", meter.ErrInvalidSession, sub.Session)
	}
	if len(sub.Photo) == 0 {
		return nil, ErrEmptyPhoto
	}
	if err := meter.ValidateValue(sub.Reading); err != nil {
		return nil, err
	}

	if sub.CapturedAt.IsZero() {
		sub.CapturedAt = s.now()
	}
	if sub.Day.IsZero() {
		sub.Day = day.Of(sub.CapturedAt)
	}

	if err := s.checkSurveyor(ctx, sub.SurveyorID); err != nil {
		return nil, err
	}

	taken, err := s.readings.Exists(ctx, sub.SurveyorID, sub.Day, sub.Session)
	if err != nil {
		return nil, fmt.Errorf("checking reading slot: %w", err)
	}
	if taken {
		return nil, meter.ErrDuplicateSubmission
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	ref, err := s.uploader.Upload(uploadCtx, sub.Photo, sub.SurveyorID, photo.BikeMeter)
	cancel()
	if err != nil {
		if !errors.Is(err, photo.ErrUploadFailed) {
			err = fmt.Errorf("%w: %w", photo.ErrUploadFailed, err)
		}
		return nil, err
	}

	r := meter.MeterReading{
		ID:         uuid.New(),
		SurveyorID: sub.SurveyorID,
		Day:        sub.Day,
		Session:    sub.Session,
		Reading:    sub.Reading,
		PhotoRef:   ref,
		CapturedAt: sub.CapturedAt.UTC(),
	}
	if err := s.readings.Insert(ctx, r); err != nil {
		if errors.Is(err, meter.ErrDuplicateSubmission) {
			s.log.Warn().Str("photo_ref", ref).Str("surveyor_id", sub.SurveyorID.String()).Msg("lost insert race, photo left orphaned")
			return nil, err
		}
		return nil, fmt.Errorf("storing reading: %w", err)
	}
	return &r, nil
}

func (s *Service) checkSurveyor(ctx context.Context, id uuid.UUID) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading surveyor: %w", err)
	}
	if u == nil {
		return ErrUnknownSurveyor
	}
	if u.Role != user.RoleSurveyor || !u.Active {
		return ErrInactiveSurveyor
	}
	return nil
}

func (s *Service) logReconciled(t *trip.Trip, readingID uuid.UUID) {
	s.events.Log(eventlogger.NewEvent(
		eventlogger.WithType(eventlogger.TripReconciled),
		eventlogger.WithData(t),
		eventlogger.WithMetadata(map[string]string{"reading_id": readingID.String()}),
	))
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, meter.ErrDuplicateSubmission):
		return "duplicate"
	case errors.Is(err, photo.ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, ErrUnknownSurveyor), errors.Is(err, ErrInactiveSurveyor):
		return "forbidden"
	case errors.Is(err, meter.ErrInvalidSession), errors.Is(err, meter.ErrNegativeReading), errors.Is(err, ErrEmptyPhoto):
		return "invalid"
	default:
		return "error"
	}
}
