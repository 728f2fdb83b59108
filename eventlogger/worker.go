package eventlogger

import (
	"context"
	"sync"
	"time"

	"github.com/billbatista/fieldmiles/logger"
	"github.com/billbatista/fieldmiles/metrics"
	"github.com/rs/zerolog"
)

const defaultSaveTimeout = 5 * time.Second

// Worker persists events off the request path. Log never blocks: events
// are dropped, and counted, when the buffer is full or the worker stopped.
type Worker struct {
	events      chan Event
	store       EventLogger
	saveTimeout time.Duration

	mu      sync.RWMutex
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewWorker(store EventLogger, bufferSize int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		events:      make(chan Event, bufferSize),
		store:       store,
		saveTimeout: defaultSaveTimeout,
		ctx:         ctx,
		cancel:      cancel,
		log:         logger.WithComponent("eventlogger"),
	}
}

func (w *Worker) Start() {
	w.wg.Go(w.run)
}

func (w *Worker) run() {
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case e := <-w.events:
			w.save(w.ctx, e)
		}
	}
}

// drain flushes whatever is buffered once the worker is cancelled, on a
// fresh context so the saves are not cut short.
func (w *Worker) drain() {
	n := len(w.events)
	if n == 0 {
		return
	}
	w.log.Info().Int("remaining_events", n).Msg("flushing buffered events")
	for range n {
		w.save(context.Background(), <-w.events)
	}
}

func (w *Worker) save(parent context.Context, e Event) {
	ctx, cancel := context.WithTimeout(parent, w.saveTimeout)
	defer cancel()
	if err := w.store.Save(ctx, e); err != nil {
		metrics.EventsDropped.WithLabelValues("save_failed").Inc()
		w.log.Error().Err(err).Str("event_type", e.Type).Str("event_id", e.ID.String()).Msg("failed to save event")
	}
}

func (w *Worker) Log(e Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		metrics.EventsDropped.WithLabelValues("stopped").Inc()
		w.log.Warn().Str("event_type", e.Type).Msg("event worker stopped, dropping event")
		return
	}
	select {
	case w.events <- e:
	default:
		metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
		w.log.Warn().Str("event_type", e.Type).Msg("event buffer full, dropping event")
	}
}

// Shutdown stops accepting events and waits for the buffer to be flushed.
// It is safe to call more than once, and Log stays safe afterwards.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}
