package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardData_UpdateFromEvent(t *testing.T) {
	d := NewDashboardData()

	d.UpdateFromEvent(Event{Type: EventSessionStarted, SessionID: "s-1", RoleID: "coder"})
	d.UpdateFromEvent(Event{Type: EventValidated, SessionID: "s-1", Phase: 2, Variant: "equals", OK: true})
	d.UpdateFromEvent(Event{Type: EventValidated, SessionID: "s-1", Phase: 3, Variant: "js_eval"})
	d.UpdateFromEvent(Event{Type: EventSentenceSkip, SessionID: "s-1"})
	d.UpdateFromEvent(Event{Type: EventChat, SessionID: "s-1"})

	snap := d.Snapshot()
	state, ok := snap.Sessions["s-1"]
	require.True(t, ok)
	assert.Equal(t, "coder", state.RoleID)
	assert.Equal(t, StatusActive, state.Status)
	assert.Equal(t, 2, state.Validations)
	assert.Equal(t, 1, state.Passed)
	assert.Equal(t, 1, state.Failed)
	assert.Equal(t, 3, state.LastPhase)
	assert.Equal(t, "js_eval", state.LastVariant)
	assert.Equal(t, 1, state.Skips)
	assert.Equal(t, 1, state.Chats)

	assert.Equal(t, 1, snap.Summary.Active)
	assert.InDelta(t, 50.0, snap.Summary.PassRate, 0.001)
}

func TestDashboardData_IgnoresSessionlessEvents(t *testing.T) {
	d := NewDashboardData()
	d.UpdateFromEvent(Event{Type: EventValidated, OK: true})
	assert.Empty(t, d.Snapshot().Sessions)
}

func TestDashboardData_EndAndForget(t *testing.T) {
	d := NewDashboardData()
	past := time.Now().Add(-time.Hour)
	d.UpdateFromEvent(Event{Type: EventSessionStarted, SessionID: "old", Timestamp: past})
	d.UpdateFromEvent(Event{Type: EventSessionEnded, SessionID: "old", Timestamp: past})
	d.UpdateFromEvent(Event{Type: EventSessionStarted, SessionID: "live"})

	snap := d.Snapshot()
	assert.Equal(t, StatusEnded, snap.Sessions["old"].Status)
	assert.Equal(t, 2, snap.Summary.Sessions)
	assert.Equal(t, 1, snap.Summary.Active)

	assert.Equal(t, 1, d.Forget(time.Now().Add(-time.Minute)))
	snap = d.Snapshot()
	assert.NotContains(t, snap.Sessions, "old")
	assert.Contains(t, snap.Sessions, "live")
}

func TestDashboardData_SnapshotIsIndependent(t *testing.T) {
	d := NewDashboardData()
	d.UpdateFromEvent(Event{Type: EventSessionStarted, SessionID: "s-1"})

	snap := d.Snapshot()
	delete(snap.Sessions, "s-1")
	assert.Contains(t, d.Snapshot().Sessions, "s-1")
}

func TestBuildDashboardData(t *testing.T) {
	c := NewEventCollector(0)
	c.EmitSessionStarted("s-1", "coder")
	c.Emit(Event{Type: EventValidated, SessionID: "s-1", OK: true})

	d := BuildDashboardData(c)
	snap := d.Snapshot()
	assert.Equal(t, 1, snap.Sessions["s-1"].Passed)
	assert.InDelta(t, 100.0, snap.Summary.PassRate, 0.001)
}
