// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	RunSubmitted    EventType = "RUN_SUBMITTED"
	RunStarted      EventType = "RUN_STARTED"
	FeedbackApplied EventType = "FEEDBACK_APPLIED"
	RunCompleted    EventType = "RUN_COMPLETED"
	RunFailed       EventType = "RUN_FAILED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event is one emitted event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data,omitempty"`
}
