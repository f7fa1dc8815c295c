package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/stemsi/exstem-session/internal/model"
)

// MockTestStore is a mock implementation of TestStore.
type MockTestStore struct {
	mock.Mock
}

func (m *MockTestStore) GetDefinition(ctx context.Context, id string) (*model.TestDefinition, error) {
	args := m.Called(ctx, id)
	def, _ := args.Get(0).(*model.TestDefinition)
	return def, args.Error(1)
}

func (m *MockTestStore) Create(ctx context.Context, def *model.TestDefinition, authorID int) error {
	args := m.Called(ctx, def, authorID)
	return args.Error(0)
}

func (m *MockTestStore) Update(ctx context.Context, def *model.TestDefinition) error {
	args := m.Called(ctx, def)
	return args.Error(0)
}

func (m *MockTestStore) ListSummaries(ctx context.Context, limit, offset int) ([]model.TestSummary, int, error) {
	args := m.Called(ctx, limit, offset)
	items, _ := args.Get(0).([]model.TestSummary)
	return items, args.Int(1), args.Error(2)
}

func (m *MockTestStore) ListIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

// MockLearnerStore is a mock implementation of LearnerStore.
type MockLearnerStore struct {
	mock.Mock
}

func (m *MockLearnerStore) GetByID(ctx context.Context, id int) (*model.Learner, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(*model.Learner)
	return l, args.Error(1)
}

func (m *MockLearnerStore) GetByEmail(ctx context.Context, email string) (*model.Learner, error) {
	args := m.Called(ctx, email)
	l, _ := args.Get(0).(*model.Learner)
	return l, args.Error(1)
}

func (m *MockLearnerStore) Create(ctx context.Context, l *model.Learner) error {
	args := m.Called(ctx, l)
	if args.Error(0) == nil {
		l.ID = 99
	}
	return args.Error(0)
}

// MockSubmissionStore is a mock implementation of SubmissionStore.
type MockSubmissionStore struct {
	mock.Mock
}

func (m *MockSubmissionStore) ListByTest(ctx context.Context, testID string, limit, offset int) ([]model.Submission, int, error) {
	args := m.Called(ctx, testID, limit, offset)
	items, _ := args.Get(0).([]model.Submission)
	return items, args.Int(1), args.Error(2)
}

// MockViolationStore is a mock implementation of ViolationStore.
type MockViolationStore struct {
	mock.Mock
}

func (m *MockViolationStore) TallyByTest(ctx context.Context, testID string) ([]model.ViolationTally, error) {
	args := m.Called(ctx, testID)
	items, _ := args.Get(0).([]model.ViolationTally)
	return items, args.Error(1)
}

// unreachableRedis returns a client whose every command fails fast, which
// drives services down their database fallback paths.
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
}

func intPtr(v int) *int { return &v }

func sampleDefinition() *model.TestDefinition {
	return &model.TestDefinition{
		ID:                     "chem-101",
		Title:                  "Chemistry Basics",
		Instructions:           []string{"No calculators"},
		GlobalTimeLimitMinutes: intPtr(60),
		Sections: []model.Section{
			{
				ID:               "atoms",
				Title:            "Atoms",
				TimeLimitMinutes: intPtr(20),
				Questions: []model.Question{
					{ID: "q1", Text: "Charge of an electron?", Options: []string{"Negative", "Positive"}},
					{ID: "q2", Text: "Proton count of carbon?", Options: []string{"6", "12"}},
				},
			},
			{
				ID:    "bonds",
				Title: "Bonds",
				Questions: []model.Question{
					{ID: "q3", Text: "Bond in NaCl?", Options: []string{"Ionic", "Covalent"}},
				},
			},
		},
	}
}
