package model

import "time"

// ViolationKind enumerates the integrity events the proctoring monitor records.
type ViolationKind string

const (
	ViolationTabSwitch ViolationKind = "TAB_SWITCH"
)

// Violation is one recorded integrity event during an active session.
type Violation struct {
	TestID     string        `json:"test_id"`
	LearnerID  int           `json:"learner_id"`
	Kind       ViolationKind `json:"kind"`
	Count      int           `json:"count"`
	TickOffset int           `json:"tick_offset"` // Seconds since the session became active
	RecordedAt time.Time     `json:"recorded_at"`
}

// ViolationTally is the per-learner violation count for a test.
type ViolationTally struct {
	LearnerID int    `json:"learner_id"`
	Name      string `json:"name"`
	Count     int64  `json:"count"`
}
