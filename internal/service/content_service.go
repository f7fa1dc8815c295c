package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/validator"
)

// FieldErrors carries field-level validation failures.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for field, msg := range f {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TestStore is the persistent home of test definitions.
type TestStore interface {
	GetDefinition(ctx context.Context, id string) (*model.TestDefinition, error)
	Create(ctx context.Context, def *model.TestDefinition, authorID int) error
	Update(ctx context.Context, def *model.TestDefinition) error
	ListSummaries(ctx context.Context, limit, offset int) ([]model.TestSummary, int, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// ContentService serves test definitions from Redis, falling back to
// PostgreSQL and repopulating the cache on a miss.
type ContentService struct {
	store TestStore
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewContentService creates a new ContentService. A zero ttl caches forever.
func NewContentService(store TestStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ContentService {
	return &ContentService{
		store: store,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "content_service").Logger(),
	}
}

// Load returns the definition of a test. It implements session.ContentProvider.
func (s *ContentService) Load(ctx context.Context, testID string) (*model.TestDefinition, error) {
	key := config.CacheKey.TestDefinitionKey(testID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var def model.TestDefinition
		if err := json.Unmarshal(data, &def); err == nil {
			return &def, nil
		}
		s.log.Warn().Str("test_id", testID).Msg("Corrupt cached definition, reloading")
	case errors.Is(err, redis.Nil):
	default:
		s.log.Warn().Err(err).Str("test_id", testID).Msg("Cache read failed, falling back to database")
	}

	def, err := s.store.GetDefinition(ctx, testID)
	if err != nil {
		return nil, err
	}

	// Self-heal the cache so the next learner hits Redis.
	if err := s.cache(ctx, def); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID).Msg("Cache write failed")
	}
	return def, nil
}

// Summary returns the instructions screen payload of a test.
func (s *ContentService) Summary(ctx context.Context, testID string) (*model.TestSummary, error) {
	def, err := s.Load(ctx, testID)
	if err != nil {
		return nil, err
	}
	sum := def.Summary()
	return &sum, nil
}

// Create validates and stores a new test, then warms its cache entry.
func (s *ContentService) Create(ctx context.Context, def *model.TestDefinition, authorID int) error {
	if fields := ValidateDefinition(def); fields != nil {
		return fields
	}
	if err := s.store.Create(ctx, def, authorID); err != nil {
		return err
	}
	if err := s.cache(ctx, def); err != nil {
		s.log.Warn().Err(err).Str("test_id", def.ID).Msg("Cache write failed after create")
	}

	s.log.Info().
		Str("test_id", def.ID).
		Int("sections", len(def.Sections)).
		Int("questions", def.TotalQuestions()).
		Msg("Test created")
	return nil
}

// Update validates and replaces a stored test, then drops its cache entry so
// the next session start reads the new content. Sessions already running
// keep the definition they loaded.
func (s *ContentService) Update(ctx context.Context, def *model.TestDefinition) error {
	if fields := ValidateDefinition(def); fields != nil {
		return fields
	}
	if err := s.store.Update(ctx, def); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, config.CacheKey.TestDefinitionKey(def.ID)).Err(); err != nil {
		s.log.Error().Err(err).Str("test_id", def.ID).Msg("Cache invalidation failed after update")
	}

	s.log.Info().
		Str("test_id", def.ID).
		Int("sections", len(def.Sections)).
		Int("questions", def.TotalQuestions()).
		Msg("Test updated")
	return nil
}

// List returns a page of test summaries.
func (s *ContentService) List(ctx context.Context, page, perPage int) ([]model.TestSummary, *response.Pagination, error) {
	page, perPage, offset := response.Page(page, perPage)
	items, total, err := s.store.ListSummaries(ctx, perPage, offset)
	if err != nil {
		return nil, nil, err
	}
	return items, response.NewPagination(page, perPage, total), nil
}

// Prewarm loads every stored test into Redis before traffic is accepted.
func (s *ContentService) Prewarm(ctx context.Context) error {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list tests: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No tests to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		def, err := s.store.GetDefinition(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("test_id", id).Msg("Failed to load test, skipping")
			continue
		}
		if err := s.cache(ctx, def); err != nil {
			s.log.Warn().Err(err).Str("test_id", id).Msg("Failed to warm test, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

func (s *ContentService) cache(ctx context.Context, def *model.TestDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.TestDefinitionKey(def.ID), data, s.ttl).Err()
}

// ValidateDefinition checks field constraints and that section and question
// ids are unique within the test.
func ValidateDefinition(def *model.TestDefinition) FieldErrors {
	if fields := validator.Struct(def); fields != nil {
		return fields
	}

	sectionIDs := make([]string, 0, len(def.Sections))
	questionIDs := make([]string, 0, def.TotalQuestions())
	for _, sec := range def.Sections {
		sectionIDs = append(sectionIDs, sec.ID)
		for _, q := range sec.Questions {
			questionIDs = append(questionIDs, q.ID)
		}
	}
	if fields := validator.Unique("sections", sectionIDs); fields != nil {
		return fields
	}
	if fields := validator.Unique("questions", questionIDs); fields != nil {
		return fields
	}
	return nil
}
