// Package session keeps the in-memory play sessions of the server
// and routes player actions to the session's own collaborators.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"digital.vasic.prompthunter/pkg/aiscore"
	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/metrics"
	"digital.vasic.prompthunter/pkg/monitor"
	"digital.vasic.prompthunter/pkg/rotation"
	"digital.vasic.prompthunter/pkg/sandbox"
	"digital.vasic.prompthunter/pkg/validator"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRoleNotFound    = errors.New("role not found")
	ErrPhaseNotFound   = errors.New("phase not found")
	ErrNotCopyPhase    = errors.New("phase is not a copy-typing phase")
	ErrAIUnavailable   = errors.New("ai assistant is not configured")
)

// Roles resolves roles by id.
type Roles interface {
	Role(id string) (*content.Role, bool)
}

// Manager holds every live session.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	roles      Roles
	generator  aiscore.Generator
	clientOpts []aiscore.Option
	rotOpts    []rotation.Option
	sandbox    sandbox.Executor
	defaultKey string
	logger     logging.Logger
	metrics    metrics.ValidationMetrics
	events     monitor.Sink
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithGenerator sets the model transport shared by all sessions.
// Without one, AI scoring, chat and sentence generation are
// unavailable.
func WithGenerator(g aiscore.Generator) Option {
	return func(m *Manager) { m.generator = g }
}

// WithClientOptions adds options to every session's AI client.
func WithClientOptions(opts ...aiscore.Option) Option {
	return func(m *Manager) { m.clientOpts = append(m.clientOpts, opts...) }
}

// WithRotationOptions adds options to every session's rotation
// store.
func WithRotationOptions(opts ...rotation.Option) Option {
	return func(m *Manager) { m.rotOpts = append(m.rotOpts, opts...) }
}

// WithSandbox sets the executor for js_eval phases.
func WithSandbox(e sandbox.Executor) Option {
	return func(m *Manager) { m.sandbox = e }
}

// WithDefaultAPIKey sets the key used when a call carries none.
func WithDefaultAPIKey(key string) Option {
	return func(m *Manager) { m.defaultKey = key }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNull(l) }
}

func WithMetrics(mt metrics.ValidationMetrics) Option {
	return func(m *Manager) { m.metrics = metrics.OrNoop(mt) }
}

func WithEvents(s monitor.Sink) Option {
	return func(m *Manager) { m.events = monitor.OrNop(s) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager serving roles.
func NewManager(roles Roles, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		roles:    roles,
		logger:   logging.NullLogger{},
		metrics:  metrics.NoopMetrics{},
		events:   monitor.NopSink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session for roleID.
func (m *Manager) Create(roleID string) (*Session, error) {
	role, ok := m.roles.Role(roleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}

	id := uuid.NewString()
	now := m.now()
	logger := m.logger.WithFields(
		logging.StringField("session_id", id),
		logging.StringField("role_id", role.ID),
	)
	events := monitor.Scoped(m.events, id, role.ID)

	s := &Session{
		ID:       id,
		Role:     role,
		Created:  now,
		lastSeen: now,
		events:   events,
	}

	rotOpts := append([]rotation.Option{}, m.rotOpts...)
	rotOpts = append(rotOpts, rotation.WithLogger(logger), rotation.WithMetrics(m.metrics))
	if m.generator != nil {
		clientOpts := append([]aiscore.Option{}, m.clientOpts...)
		clientOpts = append(clientOpts, aiscore.WithLogger(logger), aiscore.WithMetrics(m.metrics))
		s.client = aiscore.NewClient(m.generator, clientOpts...)
		rotOpts = append(rotOpts, rotation.WithSource(s.client))
	}
	s.rotation = rotation.NewStore(rotOpts...)

	dispOpts := []validator.Option{
		validator.WithRotation(s.rotation),
		validator.WithLogger(logger),
		validator.WithMetrics(m.metrics),
		validator.WithEvents(events),
	}
	if m.sandbox != nil {
		dispOpts = append(dispOpts, validator.WithSandbox(m.sandbox))
	}
	if s.client != nil {
		dispOpts = append(dispOpts, validator.WithScorer(s.client))
	}
	s.dispatcher = validator.NewDispatcher(dispOpts...)

	m.mu.Lock()
	m.sessions[id] = s
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(active)
	m.events.Emit(monitor.Event{
		Type:      monitor.EventSessionStarted,
		SessionID: id,
		RoleID:    role.ID,
		Timestamp: now,
	})
	logger.Info("session started")
	return s, nil
}

// Get returns the session and marks it as seen.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.touch(m.now())
	return s, nil
}

// End removes a session and clears its rotations.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	active := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.finish(s, "ended", active)
	return nil
}

func (m *Manager) finish(s *Session, reason string, active int) {
	s.rotation.ClearAll()
	m.metrics.SetActiveSessions(active)
	m.events.Emit(monitor.Event{
		Type:      monitor.EventSessionEnded,
		SessionID: s.ID,
		RoleID:    s.Role.ID,
		Message:   reason,
		Timestamp: m.now(),
	})
	m.logger.Info("session finished",
		logging.StringField("session_id", s.ID),
		logging.StringField("reason", reason),
	)
}

// Sweep ends sessions idle for longer than maxIdle and returns how
// many it ended.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		m.finish(s, "expired", active)
	}
	return len(expired)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns every live session.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

func (m *Manager) key(apiKey string) string {
	if apiKey != "" {
		return apiKey
	}
	return m.defaultKey
}

func (m *Manager) phase(id string, n int) (*Session, *content.Phase, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	phase, ok := s.Role.Phase(n)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%d", ErrPhaseNotFound, s.Role.ID, n)
	}
	return s, phase, nil
}

func (m *Manager) copyPhase(id string, n int) (*Session, *content.Phase, error) {
	s, phase, err := m.phase(id, n)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := phase.Validator.(content.HealExactCopy); !ok {
		return nil, nil, fmt.Errorf("%w: %s/%d", ErrNotCopyPhase, s.Role.ID, n)
	}
	return s, phase, nil
}

// Validate judges text against phase n of the session's role.
func (m *Manager) Validate(
	ctx context.Context, id string, n int, text string, extras validator.Extras,
) (validator.Result, error) {
	s, phase, err := m.phase(id, n)
	if err != nil {
		return validator.Result{}, err
	}
	extras.APIKey = m.key(extras.APIKey)
	extras.Role = s.Role
	return s.dispatcher.Validate(ctx, phase, text, extras), nil
}

// NextSentence returns the copy target of phase n, generating a
// new batch when the pool is exhausted.
func (m *Manager) NextSentence(ctx context.Context, id string, n int, apiKey string) (rotation.Sentence, error) {
	s, phase, err := m.copyPhase(id, n)
	if err != nil {
		return rotation.Sentence{}, err
	}
	return s.rotation.Ensure(ctx, rotation.KeyFor(phase), phase, m.key(apiKey)), nil
}

// Skip moves phase n past its current target. It reports whether
// anything was skipped.
func (m *Manager) Skip(id string, n int) (bool, error) {
	s, phase, err := m.copyPhase(id, n)
	if err != nil {
		return false, err
	}
	skipped := s.rotation.ClearOne(rotation.KeyFor(phase))
	if skipped {
		s.events.Emit(monitor.Event{Type: monitor.EventSentenceSkip, Phase: n, TaskType: phase.TaskType})
	}
	return skipped, nil
}

// ResetPhase returns phase n to its first premade sentence.
func (m *Manager) ResetPhase(id string, n int) (rotation.Sentence, error) {
	s, phase, err := m.copyPhase(id, n)
	if err != nil {
		return rotation.Sentence{}, err
	}
	key := rotation.KeyFor(phase)
	s.rotation.ResetOne(key, phase)
	s.events.Emit(monitor.Event{Type: monitor.EventPhaseReset, Phase: n, TaskType: phase.TaskType})

	cur, _ := s.rotation.Current(key, phase)
	return cur, nil
}

// Restart forgets every rotation of the session.
func (m *Manager) Restart(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.rotation.ClearAll()
	s.events.Emit(monitor.Event{Type: monitor.EventRestarted})
	return nil
}

// Chat asks the assistant about phase n.
func (m *Manager) Chat(ctx context.Context, id string, n int, apiKey, prompt string) (aiscore.ChatReply, error) {
	s, phase, err := m.phase(id, n)
	if err != nil {
		return aiscore.ChatReply{}, err
	}
	if s.client == nil {
		return aiscore.ChatReply{}, ErrAIUnavailable
	}

	reply, err := s.client.Chat(ctx, m.key(apiKey), content.BuildContext(s.Role, phase), prompt)
	s.events.Emit(monitor.Event{
		Type:     monitor.EventChat,
		Phase:    n,
		TaskType: phase.TaskType,
		OK:       err == nil,
	})
	return reply, err
}
