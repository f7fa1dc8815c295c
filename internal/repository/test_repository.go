package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
)

var ErrDuplicateTest = errors.New("test with this id already exists")

// TestRepository handles test definitions: tests, sections and questions.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetDefinition assembles the full definition of a test in section and
// question order. Unknown ids yield session.ErrTestNotFound.
func (r *TestRepository) GetDefinition(ctx context.Context, id string) (*model.TestDefinition, error) {
	def := &model.TestDefinition{ID: id}
	err := r.pool.QueryRow(ctx,
		`SELECT title, description, instructions, global_time_limit_minutes, created_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&def.Title, &def.Description, &def.Instructions, &def.GlobalTimeLimitMinutes, &def.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, title, time_limit_minutes
		 FROM sections WHERE test_id = $1
		 ORDER BY order_num ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.ID, &s.Title, &s.TimeLimitMinutes); err != nil {
			return nil, err
		}
		index[s.ID] = len(def.Sections)
		def.Sections = append(def.Sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	qrows, err := r.pool.Query(ctx,
		`SELECT id, section_id, text, options
		 FROM questions WHERE test_id = $1
		 ORDER BY order_num ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer qrows.Close()

	for qrows.Next() {
		var q model.Question
		if err := qrows.Scan(&q.ID, &q.SectionID, &q.Text, &q.Options); err != nil {
			return nil, err
		}
		i, ok := index[q.SectionID]
		if !ok {
			continue
		}
		def.Sections[i].Questions = append(def.Sections[i].Questions, q)
	}
	return def, qrows.Err()
}

// Create inserts a test with its sections and questions in one transaction.
func (r *TestRepository) Create(ctx context.Context, def *model.TestDefinition, authorID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO tests (id, title, description, instructions, global_time_limit_minutes, author_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		def.ID, def.Title, def.Description, def.Instructions, def.GlobalTimeLimitMinutes, authorID,
	).Scan(&def.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTest
		}
		return fmt.Errorf("insert test: %w", err)
	}

	if err := tx.SendBatch(ctx, contentBatch(def)).Close(); err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return tx.Commit(ctx)
}

// Update replaces the header, sections and questions of an existing test in
// one transaction. Submissions keep referencing the test id.
func (r *TestRepository) Update(ctx context.Context, def *model.TestDefinition) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE tests
		 SET title = $2, description = $3, instructions = $4, global_time_limit_minutes = $5
		 WHERE id = $1
		 RETURNING created_at`,
		def.ID, def.Title, def.Description, def.Instructions, def.GlobalTimeLimitMinutes,
	).Scan(&def.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.ErrTestNotFound
		}
		return fmt.Errorf("update test: %w", err)
	}

	// Questions go with their sections through the cascade.
	if _, err := tx.Exec(ctx, `DELETE FROM sections WHERE test_id = $1`, def.ID); err != nil {
		return fmt.Errorf("clear content: %w", err)
	}
	if err := tx.SendBatch(ctx, contentBatch(def)).Close(); err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return tx.Commit(ctx)
}

// contentBatch queues the section and question rows of def in display order.
func contentBatch(def *model.TestDefinition) *pgx.Batch {
	batch := &pgx.Batch{}
	order := 0
	for si, s := range def.Sections {
		batch.Queue(
			`INSERT INTO sections (test_id, id, title, time_limit_minutes, order_num)
			 VALUES ($1, $2, $3, $4, $5)`,
			def.ID, s.ID, s.Title, s.TimeLimitMinutes, si,
		)
		for qi := range s.Questions {
			q := &def.Sections[si].Questions[qi]
			q.SectionID = s.ID
			batch.Queue(
				`INSERT INTO questions (test_id, id, section_id, text, options, order_num)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				def.ID, q.ID, q.SectionID, q.Text, q.Options, order,
			)
			order++
		}
	}
	return batch
}

// ListSummaries returns the instructions summaries of all tests, newest first.
func (r *TestRepository) ListSummaries(ctx context.Context, limit, offset int) ([]model.TestSummary, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tests`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.title, t.description, t.instructions, t.global_time_limit_minutes,
		        (SELECT COUNT(*) FROM sections s WHERE s.test_id = t.id),
		        (SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id),
		        (SELECT COALESCE(SUM(s.time_limit_minutes), 0) FROM sections s WHERE s.test_id = t.id)
		 FROM tests t
		 ORDER BY t.created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := make([]model.TestSummary, 0)
	for rows.Next() {
		var (
			s           model.TestSummary
			globalLimit *int
			sectionSum  int
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.Instructions, &globalLimit,
			&s.SectionCount, &s.TotalQuestions, &sectionSum); err != nil {
			return nil, 0, err
		}
		s.TimeLimitMinutes = sectionSum
		if globalLimit != nil {
			s.TimeLimitMinutes = *globalLimit
		}
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

// ListIDs returns the ids of every stored test.
func (r *TestRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tests ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
