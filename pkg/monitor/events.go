package monitor

import (
	"time"
)

// EventType represents the type of a session event.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"
	EventValidated      EventType = "validated"
	EventSentenceSkip   EventType = "sentence_skipped"
	EventPhaseReset     EventType = "phase_reset"
	EventRestarted      EventType = "restarted"
	EventChat           EventType = "chat"
)

// Event is one thing that happened in a play session.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	RoleID    string        `json:"role_id,omitempty"`
	Phase     int           `json:"phase,omitempty"`
	TaskType  string        `json:"task_type,omitempty"`
	Variant   string        `json:"variant,omitempty"`
	OK        bool          `json:"ok"`
	Score     *int          `json:"score,omitempty"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Sink receives events.
type Sink interface {
	Emit(Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// OrNop returns s, or NopSink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}

type scopedSink struct {
	next      Sink
	sessionID string
	roleID    string
}

func (s scopedSink) Emit(e Event) {
	if e.SessionID == "" {
		e.SessionID = s.sessionID
	}
	if e.RoleID == "" {
		e.RoleID = s.roleID
	}
	s.next.Emit(e)
}

// Scoped returns a Sink that stamps the session and role onto
// every event it forwards to next.
func Scoped(next Sink, sessionID, roleID string) Sink {
	return scopedSink{next: OrNop(next), sessionID: sessionID, roleID: roleID}
}
