package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

const reportTimeout = 3 * time.Second

// SubmissionQueue hands final snapshots to the persistence worker through
// Redis. It implements session.SubmissionSink.
type SubmissionQueue struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewSubmissionQueue creates a new SubmissionQueue.
func NewSubmissionQueue(rdb *redis.Client, log zerolog.Logger) *SubmissionQueue {
	return &SubmissionQueue{
		rdb: rdb,
		log: log.With().Str("component", "submission_queue").Logger(),
	}
}

// Submit enqueues the submission and announces it on the monitor channel.
func (q *SubmissionQueue) Submit(ctx context.Context, s *model.Submission) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	event, err := json.Marshal(model.MonitorEvent{
		Type:       model.MonitorSubmitted,
		TestID:     s.TestID,
		LearnerID:  s.LearnerID,
		Violations: s.ViolationCount,
		Answered:   len(s.Answers),
		Reason:     s.Reason,
		At:         s.SubmittedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := q.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, payload)
	pipe.Publish(ctx, config.CacheKey.TestMonitorChannel(s.TestID), event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue submission: %w", err)
	}

	q.log.Debug().
		Str("submission_id", s.ID.String()).
		Str("test_id", s.TestID).
		Msg("Submission queued")
	return nil
}

// ViolationReporter queues violations for persistence and broadcasts them to
// proctors. It implements session.ViolationObserver.
type ViolationReporter struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewViolationReporter creates a new ViolationReporter.
func NewViolationReporter(rdb *redis.Client, log zerolog.Logger) *ViolationReporter {
	return &ViolationReporter{
		rdb: rdb,
		log: log.With().Str("component", "violation_reporter").Logger(),
	}
}

// ViolationRecorded enqueues v. Failures are logged; the session is never blocked.
func (r *ViolationReporter) ViolationRecorded(v model.Violation) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	payload, _ := json.Marshal(v)
	event, _ := json.Marshal(model.MonitorEvent{
		Type:       model.MonitorViolation,
		TestID:     v.TestID,
		LearnerID:  v.LearnerID,
		Violations: v.Count,
		At:         v.RecordedAt,
	})

	pipe := r.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload)
	pipe.Publish(ctx, config.CacheKey.TestMonitorChannel(v.TestID), event)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error().Err(err).
			Int("learner_id", v.LearnerID).
			Str("test_id", v.TestID).
			Msg("Failed to report violation")
	}
}
