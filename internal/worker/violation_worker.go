package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationStore persists violations in bulk or one at a time.
type ViolationStore interface {
	CopyBatch(ctx context.Context, batch []model.Violation) error
	Insert(ctx context.Context, v model.Violation) error
}

// ViolationWorker batches persist_violations_queue into PostgreSQL.
type ViolationWorker struct {
	store ViolationStore
	rdb   *redis.Client
	log   zerolog.Logger
	// requeue pushes failed rows back onto the queue.
	requeue func(ctx context.Context, items []model.Violation)
}

// NewViolationWorker creates a new ViolationWorker.
func NewViolationWorker(store ViolationStore, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	w := &ViolationWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "violation_worker").Logger(),
	}
	w.requeue = w.requeueRedis
	return w
}

// Start begins the batching loop. Call in a goroutine.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]model.Violation, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				continue // Shutdown is handled at the top of the loop
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		v, ok := w.decode([]byte(result[1]))
		if !ok {
			continue
		}
		buffer = append(buffer, v)
	}
}

// decode parses one queue item. Malformed JSON cannot be retried, so it is
// logged and discarded.
func (w *ViolationWorker) decode(raw []byte) (model.Violation, bool) {
	var v model.Violation
	if err := json.Unmarshal(raw, &v); err != nil {
		w.log.Error().Err(err).Str("data", string(raw)).Msg("Discarding malformed JSON")
		return v, false
	}
	if v.Kind == "" {
		v.Kind = model.ViolationTabSwitch
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = time.Now().UTC()
	}
	return v, true
}

// flushSafe attempts a bulk insert, then row-by-row insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.Violation) {
	if err := w.store.CopyBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Violations flushed")
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.Violation) {
	failed := make([]model.Violation, 0)
	for _, v := range batch {
		if err := w.store.Insert(ctx, v); err != nil {
			w.log.Error().Err(err).Int("learner_id", v.LearnerID).Msg("Insert failed, requeueing")
			failed = append(failed, v)
		}
	}

	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *ViolationWorker) requeueRedis(ctx context.Context, items []model.Violation) {
	pipe := w.rdb.Pipeline()
	for _, v := range items {
		data, _ := json.Marshal(v)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue violations to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off in case the database is down hard.
	time.Sleep(2 * time.Second)
}

func (w *ViolationWorker) shutdown(buffer []model.Violation) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
	w.log.Info().Msg("Worker stopped")
}
