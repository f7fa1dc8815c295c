package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// SubmissionStore persists submissions.
type SubmissionStore interface {
	Insert(ctx context.Context, s *model.Submission) error
}

// SubmissionWorker consumes persist_submissions_queue and inserts submissions into PostgreSQL.
type SubmissionWorker struct {
	store SubmissionStore
	rdb   *redis.Client
	log   zerolog.Logger
	retry time.Duration
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(store SubmissionStore, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "submission_worker").Logger(),
		retry: 5 * time.Second,
	}
}

// errMalformed marks queue items that can never be persisted.
var errMalformed = errors.New("malformed payload")

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SubmissionWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error, sleeping 3s")
			time.Sleep(3 * time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.handle(ctx, []byte(result[1])); err != nil {
		if errors.Is(err, errMalformed) {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed submission")
			return
		}
		w.log.Error().Err(err).Msg("Persist error, requeueing")
		w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, result[1])
		time.Sleep(w.retry)
	}
}

// handle decodes and persists one queue item.
func (w *SubmissionWorker) handle(ctx context.Context, raw []byte) error {
	var sub model.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if sub.TestID == "" || sub.LearnerID == 0 {
		return fmt.Errorf("%w: missing test or learner", errMalformed)
	}
	if sub.Answers == nil {
		sub.Answers = map[string]string{}
	}
	if sub.Flagged == nil {
		sub.Flagged = []string{}
	}

	if err := w.store.Insert(ctx, &sub); err != nil {
		return fmt.Errorf("insert submission %s: %w", sub.ID, err)
	}

	w.log.Debug().
		Str("submission_id", sub.ID.String()).
		Str("test_id", sub.TestID).
		Int("learner_id", sub.LearnerID).
		Msg("Submission persisted")
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *SubmissionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistSubmissionsQueue).Result()
		if err != nil {
			break
		}

		if err := w.handle(ctx, []byte(result)); err != nil {
			if errors.Is(err, errMalformed) {
				w.log.Error().Err(err).Msg("Drain discarded malformed submission")
				continue
			}
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
