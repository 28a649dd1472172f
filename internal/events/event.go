// Package events defines the progress events the round controller emits at
// each state transition, and sinks that record them.
package events

import (
	"time"
)

// EventType identifies the category of a progress event.
type EventType string

const (
	// EventTransition marks the controller entering a new round state.
	EventTransition EventType = "transition"
	// EventPoll records one polling attempt for a qualifying reply.
	EventPoll EventType = "poll"
	// EventWarning records a non-fatal problem, such as a failed save.
	EventWarning EventType = "warning"
	// EventError records the error that stopped the loop.
	EventError EventType = "error"
)

// ProgressEvent is one structured progress record.
type ProgressEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	RoundID   string    `json:"round_id,omitempty"`
	Round     int       `json:"round"`
	Type      EventType `json:"type"`

	// State is the round state entered (transition events only).
	State string `json:"state,omitempty"`

	// Summary is a short human-readable description.
	Summary string `json:"summary,omitempty"`

	Anchor      string   `json:"anchor,omitempty"`
	CandidateID string   `json:"candidate_id,omitempty"`
	Author      string   `json:"author,omitempty"`
	Actions     []string `json:"actions,omitempty"`
	PostID      string   `json:"post_id,omitempty"`

	// Poll fields.
	Attempt   int    `json:"attempt,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	Outcome   string `json:"outcome,omitempty"`

	Error string `json:"error,omitempty"`
}

// Sink records progress events.
type Sink interface {
	WriteOne(event ProgressEvent) error
	Close() error
}

// ValidEventTypes returns all valid event type values.
func ValidEventTypes() []EventType {
	return []EventType{
		EventTransition,
		EventPoll,
		EventWarning,
		EventError,
	}
}

// IsValidEventType checks if the given string is a valid event type.
func IsValidEventType(s string) bool {
	for _, t := range ValidEventTypes() {
		if string(t) == s {
			return true
		}
	}
	return false
}

// Recorder keeps events in memory. Tests use it to observe the controller.
type Recorder struct {
	Events []ProgressEvent
}

// WriteOne appends the event.
func (r *Recorder) WriteOne(event ProgressEvent) error {
	r.Events = append(r.Events, event)
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// States returns the State of every transition event in order.
func (r *Recorder) States() []string {
	var states []string
	for _, e := range r.Events {
		if e.Type == EventTransition {
			states = append(states, e.State)
		}
	}
	return states
}
