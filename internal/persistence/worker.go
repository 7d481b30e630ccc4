package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/engine"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/observability"
)

// Worker drains the engine's persist channel and batch-writes the event log.
// The engine uses blocking sends on that channel, so when the worker falls
// behind the engine stalls instead of losing events.
type Worker struct {
	writer       *EventLogWriter
	inputChan    <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan engine.Output, batchSize int, flushTimeout time.Duration, metrics *observability.Metrics, log zerolog.Logger) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run batches envelopes and flushes when the batch fills or the timeout
// expires. Blocks until the context is canceled or the channel closes; a
// final flush covers whatever is buffered at shutdown.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			row, err := RowFromEnvelope(out.Envelope)
			if err != nil {
				// A payload the engine emitted always marshals; this is a
				// programming error, not a runtime condition.
				w.log.Error().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("unmarshalable envelope")
				continue
			}
			batch = append(batch, row)

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write lands or
// the context is canceled. The worker never drops a batch; backpressure
// propagates to the engine through the full channel.
func (w *Worker) flushWithRetry(ctx context.Context, batch []EventRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(batch)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				// One last try with a fresh context so shutdown does not
				// abandon the batch.
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, batch); err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		} else if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []EventRow) error {
	start := time.Now()
	if err := w.writer.WriteEventBatch(ctx, batch); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistEventsWritten.Add(float64(len(batch)))
		w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].Sequence))
	}
	return nil
}
