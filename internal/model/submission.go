package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmitReason records what ended an active session.
type SubmitReason string

const (
	SubmitReasonLearner      SubmitReason = "LEARNER"
	SubmitReasonTimeExpired  SubmitReason = "TIME_EXPIRED"
	SubmitReasonEndOfContent SubmitReason = "END_OF_CONTENT"
)

// Submission is the final snapshot handed to the submission sink.
type Submission struct {
	ID               uuid.UUID         `json:"id"`
	TestID           string            `json:"test_id"`
	LearnerID        int               `json:"learner_id"`
	Answers          map[string]string `json:"answers"`
	Flagged          []string          `json:"flagged"`
	ViolationCount   int               `json:"violation_count"`
	TimeTakenSeconds int               `json:"time_taken_seconds"`
	Reason           SubmitReason      `json:"reason"`
	SubmittedAt      time.Time         `json:"submitted_at"`
}
