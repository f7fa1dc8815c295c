package service

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
	"github.com/stemsi/exstem-session/internal/session"
)

// activeSessionTTL bounds how long a crashed connection can keep its claim.
const activeSessionTTL = 12 * time.Hour

var ErrSessionRunning = errors.New("learner already has a running session for this test")

// Adapters are the per-connection presentation collaborators of a session.
type Adapters struct {
	Fullscreen session.Fullscreen
	Events     session.EventSource
	Navigator  session.Navigator
	OnChange   func(session.View)
}

// SessionService assembles session controllers and tracks which learners
// have a live connection per test.
type SessionService struct {
	rdb         *redis.Client
	content     session.ContentProvider
	sink        session.SubmissionSink
	observer    session.ViolationObserver
	alarmWindow time.Duration
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	rdb *redis.Client,
	content session.ContentProvider,
	sink session.SubmissionSink,
	observer session.ViolationObserver,
	alarmWindow time.Duration,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		rdb:         rdb,
		content:     content,
		sink:        sink,
		observer:    observer,
		alarmWindow: alarmWindow,
		log:         log,
	}
}

// NewController builds a controller for one learner connection.
func (s *SessionService) NewController(learnerID int, a Adapters) *session.Controller {
	return session.NewController(session.Deps{
		Content:     s.content,
		Fullscreen:  a.Fullscreen,
		Events:      a.Events,
		Sink:        s.sink,
		Navigator:   a.Navigator,
		Observer:    s.observer,
		OnChange:    a.OnChange,
		LearnerID:   learnerID,
		AlarmWindow: s.alarmWindow,
	}, s.log)
}

// Claim marks the learner as connected to the test. A second concurrent
// connection gets ErrSessionRunning.
func (s *SessionService) Claim(ctx context.Context, testID string, learnerID int) error {
	ok, err := s.rdb.SetNX(ctx, config.CacheKey.LearnerActiveSessionKey(testID, learnerID), time.Now().Unix(), activeSessionTTL).Result()
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return ErrSessionRunning
	}
	return nil
}

// Release drops the learner's claim on the test.
func (s *SessionService) Release(ctx context.Context, testID string, learnerID int) error {
	return s.rdb.Del(ctx, config.CacheKey.LearnerActiveSessionKey(testID, learnerID)).Err()
}

// Announce publishes a lifecycle event on the test's monitor channel.
func (s *SessionService) Announce(ctx context.Context, typ model.MonitorEventType, testID string, learnerID int) {
	event, _ := json.Marshal(model.MonitorEvent{
		Type:      typ,
		TestID:    testID,
		LearnerID: learnerID,
		At:        time.Now().UTC(),
	})
	if err := s.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(testID), event).Err(); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID).Msg("Failed to publish monitor event")
	}
}
