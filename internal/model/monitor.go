package model

import "time"

// MonitorEventType enumerates the live events published for proctors.
type MonitorEventType string

const (
	MonitorJoined    MonitorEventType = "joined"
	MonitorViolation MonitorEventType = "violation"
	MonitorSubmitted MonitorEventType = "submitted"
	MonitorExited    MonitorEventType = "exited"
)

// MonitorEvent is published on a test's monitor channel.
type MonitorEvent struct {
	Type       MonitorEventType `json:"type"`
	TestID     string           `json:"test_id"`
	LearnerID  int              `json:"learner_id"`
	Violations int              `json:"violations,omitempty"`
	Answered   int              `json:"answered,omitempty"`
	Reason     SubmitReason     `json:"reason,omitempty"`
	At         time.Time        `json:"at"`
}
