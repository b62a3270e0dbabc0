package session

import (
	"sync"
	"time"

	"digital.vasic.prompthunter/pkg/aiscore"
	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/monitor"
	"digital.vasic.prompthunter/pkg/rotation"
	"digital.vasic.prompthunter/pkg/validator"
)

// Session is one player's run through a role. It owns the
// throttle state and sentence rotations of that player.
type Session struct {
	ID      string
	Role    *content.Role
	Created time.Time

	mu       sync.Mutex
	lastSeen time.Time

	rotation   *rotation.Store
	client     *aiscore.Client
	dispatcher *validator.Dispatcher
	events     monitor.Sink
}

// Info is the public view of a session.
type Info struct {
	ID       string    `json:"session_id"`
	RoleID   string    `json:"role_id"`
	RoleName string    `json:"role_name"`
	Phases   int       `json:"phases"`
	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"last_seen"`
}

// Info returns a snapshot of s.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:       s.ID,
		RoleID:   s.Role.ID,
		RoleName: s.Role.Name,
		Phases:   len(s.Role.Phases),
		Created:  s.Created,
		LastSeen: s.lastSeen,
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(cutoff)
}
