package domain

import "time"

// EventType distinguishes session event payloads.
type EventType string

const (
	EventResult   EventType = "result"
	EventProgress EventType = "progress"
)

// Event is one entry in the stream a submission produces. A submission yields
// either a single terminal result event, or a run of progress events whose
// last status is terminal. Consumers correlate by SubmissionID.
type Event struct {
	SubmissionID string         `json:"submission_id"`
	SessionID    string         `json:"session_id"`
	Type         EventType      `json:"type"`
	Result       *Result        `json:"result,omitempty"`
	Progress     *ProgressEvent `json:"progress,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
