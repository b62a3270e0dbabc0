package monitor

import (
	"sync"
	"time"
)

// Session statuses shown on the dashboard.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// DashboardData provides a real-time view of live sessions.
type DashboardData struct {
	mu        sync.RWMutex
	startTime time.Time
	sessions  map[string]SessionState
	summary   DashboardSummary
}

// SessionState is the dashboard row of one session.
type SessionState struct {
	ID          string     `json:"id"`
	RoleID      string     `json:"role_id"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	LastPhase   int        `json:"last_phase,omitempty"`
	LastVariant string     `json:"last_variant,omitempty"`
	Validations int        `json:"validations"`
	Passed      int        `json:"passed"`
	Failed      int        `json:"failed"`
	Skips       int        `json:"skips"`
	Chats       int        `json:"chats"`
}

// DashboardSummary holds aggregate stats for the dashboard.
type DashboardSummary struct {
	Sessions    int     `json:"sessions"`
	Active      int     `json:"active"`
	Validations int     `json:"validations"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	PassRate    float64 `json:"pass_rate"`
	Elapsed     string  `json:"elapsed"`
}

// DashboardSnapshot is a point-in-time copy of DashboardData.
type DashboardSnapshot struct {
	StartTime time.Time               `json:"start_time"`
	Sessions  map[string]SessionState `json:"sessions"`
	Summary   DashboardSummary        `json:"summary"`
}

// NewDashboardData creates an empty dashboard.
func NewDashboardData() *DashboardData {
	return &DashboardData{
		startTime: time.Now(),
		sessions:  make(map[string]SessionState),
	}
}

// UpdateFromEvent updates dashboard state from an event. Events
// without a session are ignored.
func (d *DashboardData) UpdateFromEvent(event Event) {
	if event.SessionID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	state, exists := d.sessions[event.SessionID]
	if !exists {
		state = SessionState{
			ID:        event.SessionID,
			RoleID:    event.RoleID,
			Status:    StatusActive,
			StartTime: at,
		}
	}

	switch event.Type {
	case EventSessionStarted:
		state.Status = StatusActive
		state.StartTime = at
	case EventSessionEnded:
		state.Status = StatusEnded
		state.EndTime = &at
	case EventValidated:
		state.Validations++
		if event.OK {
			state.Passed++
		} else {
			state.Failed++
		}
		state.LastPhase = event.Phase
		state.LastVariant = event.Variant
	case EventSentenceSkip:
		state.Skips++
	case EventChat:
		state.Chats++
	}

	d.sessions[event.SessionID] = state
	d.recalcSummary()
}

func (d *DashboardData) recalcSummary() {
	s := DashboardSummary{}
	for _, st := range d.sessions {
		s.Sessions++
		if st.Status == StatusActive {
			s.Active++
		}
		s.Validations += st.Validations
		s.Passed += st.Passed
		s.Failed += st.Failed
	}
	if s.Validations > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Validations) * 100
	}
	s.Elapsed = time.Since(d.startTime).Round(time.Millisecond).String()
	d.summary = s
}

// Forget drops ended sessions that finished before cutoff.
func (d *DashboardData) Forget(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, st := range d.sessions {
		if st.EndTime != nil && st.EndTime.Before(cutoff) {
			delete(d.sessions, id)
			n++
		}
	}
	if n > 0 {
		d.recalcSummary()
	}
	return n
}

// Snapshot returns a copy of the current dashboard state.
func (d *DashboardData) Snapshot() DashboardSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap := DashboardSnapshot{
		StartTime: d.startTime,
		Sessions:  make(map[string]SessionState, len(d.sessions)),
		Summary:   d.summary,
	}
	for k, v := range d.sessions {
		snap.Sessions[k] = v
	}
	snap.Summary.Elapsed = time.Since(d.startTime).Round(time.Millisecond).String()
	return snap
}

// BuildDashboardData creates a DashboardData from an
// EventCollector by replaying its retained events.
func BuildDashboardData(collector *EventCollector) *DashboardData {
	data := NewDashboardData()
	for _, event := range collector.Events() {
		data.UpdateFromEvent(event)
	}
	return data
}
