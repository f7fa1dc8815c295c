package config

import "fmt"

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LearnerLoginKey returns the cache key holding the active token id of a learner.
func (r *CacheKeyStruct) LearnerLoginKey(learnerID int) string {
	return fmt.Sprintf("login:%d", learnerID)
}

// TestDefinitionKey returns the cache key for a test's serialized definition.
func (r *CacheKeyStruct) TestDefinitionKey(testID string) string {
	return fmt.Sprintf("test:%s:definition", testID)
}

// LearnerActiveSessionKey returns the cache key marking a learner's live session for a test.
func (r *CacheKeyStruct) LearnerActiveSessionKey(testID string, learnerID int) string {
	return fmt.Sprintf("learner:%d:test:%s:active", learnerID, testID)
}

// TestMonitorChannel returns the Redis PubSub channel for a test's live violations.
func (r *CacheKeyStruct) TestMonitorChannel(testID string) string {
	return fmt.Sprintf("test:%s:monitor", testID)
}

// LoginAttemptKey returns the counter key for login attempts from one client IP.
func (r *CacheKeyStruct) LoginAttemptKey(ip string) string {
	return fmt.Sprintf("ratelimit:login:%s", ip)
}

var CacheKey = NewCacheKeyStruct()
