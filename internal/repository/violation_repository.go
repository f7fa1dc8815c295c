package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// ViolationRepository persists proctoring violations.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

var violationColumns = []string{"test_id", "learner_id", "kind", "count", "tick_offset", "recorded_at"}

// CopyBatch bulk-inserts violations with the COPY protocol.
func (r *ViolationRepository) CopyBatch(ctx context.Context, batch []model.Violation) error {
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violations"},
		violationColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			v := batch[i]
			return []any{v.TestID, v.LearnerID, string(v.Kind), v.Count, v.TickOffset, v.RecordedAt}, nil
		}),
	)
	return err
}

// Insert stores a single violation.
func (r *ViolationRepository) Insert(ctx context.Context, v model.Violation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violations (test_id, learner_id, kind, count, tick_offset, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.TestID, v.LearnerID, string(v.Kind), v.Count, v.TickOffset, v.RecordedAt,
	)
	return err
}

// TallyByTest returns the number of violations per learner for a test.
func (r *ViolationRepository) TallyByTest(ctx context.Context, testID string) ([]model.ViolationTally, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT v.learner_id, COALESCE(l.name, ''), COUNT(*)
		 FROM violations v
		 LEFT JOIN learners l ON l.id = v.learner_id
		 WHERE v.test_id = $1
		 GROUP BY v.learner_id, l.name
		 ORDER BY COUNT(*) DESC`,
		testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tallies := make([]model.ViolationTally, 0)
	for rows.Next() {
		var t model.ViolationTally
		if err := rows.Scan(&t.LearnerID, &t.Name, &t.Count); err != nil {
			return nil, err
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}
