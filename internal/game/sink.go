package game

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	sinkQueueSize = 256
	sinkTimeout   = 5 * time.Second
)

// Sink receives settled outcomes for archival and fan-out outside the
// process. Sinks never feed state back into the engine.
type Sink interface {
	RecordRug(ctx context.Context, pool Pool) error
	RecordSpin(ctx context.Context, spin SpinRecord) error
}

// MultiSink forwards every record to each sink in order.
type MultiSink []Sink

func (m MultiSink) RecordRug(ctx context.Context, pool Pool) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordRug(ctx, pool); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordSpin(ctx context.Context, spin SpinRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordSpin(ctx, spin); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sinkWorker drains records on its own goroutine so sink I/O never runs on
// the engine loop. Records are delivered in production order.
type sinkWorker struct {
	sink Sink
	jobs chan func(context.Context) error
	done chan struct{}
	log  zerolog.Logger
}

func newSinkWorker(sink Sink, logger zerolog.Logger) *sinkWorker {
	w := &sinkWorker{
		sink: sink,
		jobs: make(chan func(context.Context) error, sinkQueueSize),
		done: make(chan struct{}),
		log:  logger,
	}
	go w.run()
	return w
}

func (w *sinkWorker) run() {
	defer close(w.done)
	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := job(ctx); err != nil {
			w.log.Error().Err(err).Msg("Sink write failed")
		}
		cancel()
	}
}

func (w *sinkWorker) submit(job func(context.Context) error) {
	select {
	case w.jobs <- job:
	default:
		w.log.Warn().Msg("Sink queue full, dropping record")
	}
}

func (w *sinkWorker) rug(pool Pool) {
	w.submit(func(ctx context.Context) error {
		return w.sink.RecordRug(ctx, pool)
	})
}

func (w *sinkWorker) spin(rec SpinRecord) {
	w.submit(func(ctx context.Context) error {
		return w.sink.RecordSpin(ctx, rec)
	})
}

func (w *sinkWorker) close() {
	close(w.jobs)
	<-w.done
}
