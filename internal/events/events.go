// Package events provides real-time streaming of session lifecycle
// events for the monitoring surface.
package events

import "time"

// Type identifies a session lifecycle event.
type Type string

const (
	// SessionCreated fires when a new session is created on first contact.
	SessionCreated Type = "session.created"
	// SessionCleared fires when a session's history is explicitly cleared.
	SessionCleared Type = "session.cleared"
	// SessionEvicted fires when the reaper removes an idle session.
	SessionEvicted Type = "session.evicted"
)

// Event is a single session lifecycle event.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}
