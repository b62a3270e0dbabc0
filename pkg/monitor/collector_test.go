package monitor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCollector_Emit(t *testing.T) {
	c := NewEventCollector(0)

	var received []Event
	var mu sync.Mutex
	c.OnEvent(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	c.Emit(Event{Type: EventValidated, SessionID: "s-1", OK: true})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, EventValidated, received[0].Type)
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestEventCollector_Stats(t *testing.T) {
	c := NewEventCollector(0)
	c.EmitSessionStarted("s-1", "coder")
	c.Emit(Event{Type: EventValidated, SessionID: "s-1", OK: true})
	c.Emit(Event{Type: EventValidated, SessionID: "s-1"})
	c.Emit(Event{Type: EventChat, SessionID: "s-1"})
	c.EmitSessionEnded("s-1", "coder", "ended")

	s := c.Stats()
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Validations)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Sessions)
	assert.Equal(t, 1, s.Ended)
}

func TestEventCollector_KeepsNewest(t *testing.T) {
	c := NewEventCollector(3)
	for i := 1; i <= 5; i++ {
		c.Emit(Event{Type: EventValidated, Phase: i})
	}

	events := c.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{events[0].Phase, events[1].Phase, events[2].Phase})
	assert.Equal(t, 5, c.Stats().Validations)
}

func TestEventCollector_EventsIsACopy(t *testing.T) {
	c := NewEventCollector(0)
	c.Emit(Event{Type: EventChat, Message: "a"})

	events := c.Events()
	events[0].Message = "changed"
	assert.Equal(t, "a", c.Events()[0].Message)
}

func TestEventCollector_Reset(t *testing.T) {
	c := NewEventCollector(0)
	c.Emit(Event{Type: EventValidated, OK: true})
	c.Reset()

	assert.Empty(t, c.Events())
	assert.Zero(t, c.Stats().Total)
}

func TestEventCollector_ConcurrentEmit(t *testing.T) {
	c := NewEventCollector(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Emit(Event{Type: EventValidated, OK: true})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Stats().Passed)
}

func TestScoped_StampsSessionAndRole(t *testing.T) {
	c := NewEventCollector(0)
	sink := Scoped(c, "s-9", "healer")

	sink.Emit(Event{Type: EventValidated, Phase: 2})
	sink.Emit(Event{Type: EventValidated, SessionID: "other"})

	events := c.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "s-9", events[0].SessionID)
	assert.Equal(t, "healer", events[0].RoleID)
	assert.Equal(t, "other", events[1].SessionID)
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, NopSink{}, OrNop(nil))
	c := NewEventCollector(0)
	assert.Same(t, c, OrNop(c))

	assert.NotPanics(t, func() { Scoped(nil, "s", "r").Emit(Event{}) })
}
