package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// SubmissionRepository persists final session snapshots.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Insert stores a submission. Re-inserting the same id is a no-op so that
// requeued queue items never duplicate rows.
func (r *SubmissionRepository) Insert(ctx context.Context, s *model.Submission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO submissions
		   (id, test_id, learner_id, answers, flagged, violation_count, time_taken_seconds, reason, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.TestID, s.LearnerID, s.Answers, s.Flagged,
		s.ViolationCount, s.TimeTakenSeconds, s.Reason, s.SubmittedAt,
	)
	return err
}

// ListByTest returns a page of submissions for a test, newest first.
func (r *SubmissionRepository) ListByTest(ctx context.Context, testID string, limit, offset int) ([]model.Submission, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE test_id = $1`, testID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, learner_id, answers, flagged, violation_count, time_taken_seconds, reason, submitted_at
		 FROM submissions WHERE test_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2 OFFSET $3`, testID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subs := make([]model.Submission, 0)
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.TestID, &s.LearnerID, &s.Answers, &s.Flagged,
			&s.ViolationCount, &s.TimeTakenSeconds, &s.Reason, &s.SubmittedAt); err != nil {
			return nil, 0, err
		}
		subs = append(subs, s)
	}
	return subs, total, rows.Err()
}
