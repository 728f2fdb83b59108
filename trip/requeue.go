package trip

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/billbatista/fieldmiles/logger"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReadingSource reloads a reading so a retry folds in its latest value
// instead of the snapshot that failed.
type ReadingSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*meter.MeterReading, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, r meter.MeterReading) (*Trip, error)
}

// Requeue retries reconciliations that failed on the ingestion path. It is
// a single background worker fed by a bounded channel.
type Requeue struct {
	readingCh  chan uuid.UUID
	readings   ReadingSource
	reconciler reconciler
	backoff    time.Duration
	maxRounds  int
	mu         sync.RWMutex
	stopped    bool
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	log        zerolog.Logger
}

func NewRequeue(rec reconciler, readings ReadingSource, bufferSize int, backoff time.Duration) *Requeue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Requeue{
		readingCh:  make(chan uuid.UUID, bufferSize),
		readings:   readings,
		reconciler: rec,
		backoff:    backoff,
		maxRounds:  5,
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.WithComponent("requeue"),
	}
}

func (q *Requeue) Start() {
	q.wg.Go(func() {
		for {
			select {
			case <-q.ctx.Done():
				q.log.Info().Int("remaining", len(q.readingCh)).Msg("draining requeued readings before shutdown")
				for len(q.readingCh) > 0 {
					id := <-q.readingCh
					metrics.RequeueDepth.Dec()
					if err := q.attempt(context.Background(), id); err != nil {
						q.log.Error().Err(err).Str("reading_id", id.String()).Msg("reconciliation retry failed during shutdown")
					}
				}
				return
			case id := <-q.readingCh:
				metrics.RequeueDepth.Dec()
				q.retry(id)
			}
		}
	})
}

// Enqueue schedules a retry and reports false when the queue is full or
// already shut down.
func (q *Requeue) Enqueue(r meter.MeterReading) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		q.log.Warn().Str("reading_id", r.ID.String()).Msg("requeue stopped, dropping reconciliation retry")
		return false
	}
	select {
	case q.readingCh <- r.ID:
		metrics.RequeueDepth.Inc()
		return true
	default:
		q.log.Warn().Str("reading_id", r.ID.String()).Msg("requeue full, dropping reconciliation retry")
		return false
	}
}

// Shutdown stops accepting retries and drains what is queued. The channel
// is left open; Enqueue checks stopped instead. Calling it twice is a no-op.
func (q *Requeue) Shutdown() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Requeue) retry(id uuid.UUID) {
	delay := q.backoff
	for round := 1; round <= q.maxRounds; round++ {
		select {
		case <-q.ctx.Done():
			// Shutdown gets one last try from the drain loop.
			select {
			case q.readingCh <- id:
				metrics.RequeueDepth.Inc()
			default:
			}
			return
		case <-time.After(delay):
		}

		err := q.attempt(q.ctx, id)
		if err == nil {
			q.log.Info().Str("reading_id", id.String()).Int("round", round).Msg("requeued reading reconciled")
			return
		}
		if errors.Is(err, meter.ErrReadingNotFound) {
			q.log.Warn().Str("reading_id", id.String()).Msg("requeued reading no longer exists")
			return
		}
		q.log.Warn().Err(err).Str("reading_id", id.String()).Int("round", round).Msg("reconciliation retry failed")
		delay *= 2
	}
	q.log.Error().Str("reading_id", id.String()).Msg("giving up on reconciliation retry")
}

func (q *Requeue) attempt(ctx context.Context, id uuid.UUID) error {
	r, err := q.readings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = q.reconciler.Reconcile(ctx, *r)
	return err
}
