package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// Queue is the Redis list the API pushes violation events onto.
type Queue interface {
	PopViolation(ctx context.Context, timeout time.Duration) ([]byte, error)
	RequeueViolations(ctx context.Context, payloads [][]byte) error
	QueueLength(ctx context.Context) (int64, error)
}

// Store is the exam_violations table.
type Store interface {
	CopyViolations(ctx context.Context, events []model.ViolationEvent) error
	InsertViolation(ctx context.Context, ev model.ViolationEvent) error
}

// ViolationWorker drains the violation queue into PostgreSQL in batches.
type ViolationWorker struct {
	queue   Queue
	store   Store
	metrics *metrics.Metrics
	log     zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	errorBackoff time.Duration
}

func NewViolationWorker(queue Queue, store Store, m *metrics.Metrics, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		queue:        queue,
		store:        store,
		metrics:      m,
		log:          log.With().Str("component", "violation_worker").Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		pollTimeout:  PollTimeout,
		errorBackoff: 2 * time.Second,
	}
}

// Start runs until ctx is done, then flushes what it holds.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]model.ViolationEvent, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		data, err := w.queue.PopViolation(ctx, w.pollTimeout)
		if err != nil {
			if errors.Is(err, repository.ErrCacheMiss) {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				continue // Shutdown is handled at the top of the loop
			}
			w.log.Error().Err(err).Dur("backoff", w.errorBackoff).Msg("Queue read failed")
			w.sleep(ctx, w.errorBackoff)
			continue
		}

		// 4. Process Data
		var ev model.ViolationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", string(data)).Msg("Discarding malformed violation")
			continue
		}
		buffer = append(buffer, ev)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ViolationEvent) {
	if n, err := w.queue.QueueLength(ctx); err == nil {
		w.metrics.QueueDepth(n)
	}

	if err := w.store.CopyViolations(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Violations persisted")
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.ViolationEvent) {
	var requeue [][]byte

	for _, ev := range batch {
		if err := w.store.InsertViolation(ctx, ev); err != nil {
			w.log.Error().Err(err).Int("student_id", ev.StudentID).Msg("Insert failed, requeueing")
			data, _ := json.Marshal(ev)
			requeue = append(requeue, data)
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, payloads [][]byte) {
	if err := w.queue.RequeueViolations(ctx, payloads); err != nil {
		w.log.Error().Err(err).Int("count", len(payloads)).Msg("CRITICAL: Failed to requeue violations. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(payloads)).Msg("Requeued failed violations")
	// Avoid thrashing while the database is down.
	w.sleep(ctx, w.errorBackoff)
}

func (w *ViolationWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *ViolationWorker) shutdown(buffer []model.ViolationEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
