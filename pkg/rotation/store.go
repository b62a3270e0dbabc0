// Package rotation serves the target sentences of copy-typing
// phases. Each phase key walks a capped premade pool and then
// replacement batches from a sentence source.
package rotation

import (
	"context"
	"strings"
	"sync"

	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/metrics"
)

const (
	// DefaultPremadeCap bounds the premade pool of a phase.
	DefaultPremadeCap = 10
	// DefaultBatchSize is the size of a replacement pool.
	DefaultBatchSize = 5
)

// FallbackSentences replace a generated batch when generation
// fails. There are exactly DefaultBatchSize of them.
var FallbackSentences = []string{
	"The quick brown fox jumps over the lazy dog.",
	"Healing light flows through steady hands.",
	"Every careful keystroke mends a little more.",
	"Calm breath and clear focus restore the team.",
	"Patience turns small steps into strong recovery.",
}

// Key identifies one rotation.
type Key struct {
	Phase    int
	TaskType string
}

// KeyFor returns the rotation key of phase.
func KeyFor(phase *content.Phase) Key {
	return Key{Phase: phase.Phase, TaskType: phase.TaskType}
}

// SentenceSource produces replacement sentences.
type SentenceSource interface {
	GenerateSentences(
		ctx context.Context, apiKey string, examples []string, guidance string, n int,
	) ([]string, error)
}

// Sentence is the current target of a rotation. Remaining counts
// the current target.
type Sentence struct {
	Target       string `json:"target_sentence"`
	Remaining    int    `json:"sentences_remaining"`
	UsingPremade bool   `json:"using_premade"`
}

// CopyResult is the outcome of one copy attempt.
type CopyResult struct {
	OK           bool
	Target       string
	Remaining    int
	ErrorCount   int
	Score        int
	UsingPremade bool
}

type state struct {
	mu      sync.Mutex
	ready   bool
	pool    []string
	index   int
	premade bool
}

func (st *state) exhausted() bool { return st.index >= len(st.pool) }

func (st *state) current() Sentence {
	return Sentence{
		Target:       st.pool[st.index],
		Remaining:    len(st.pool) - st.index,
		UsingPremade: st.premade,
	}
}

// Store holds the rotations of one session. Operations on one key
// are serialized by that key's mutex.
type Store struct {
	mu         sync.Mutex
	states     map[Key]*state
	source     SentenceSource
	premadeCap int
	batchSize  int
	logger     logging.Logger
	metrics    metrics.ValidationMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithSource sets where replacement sentences come from. Without
// one every replacement uses FallbackSentences.
func WithSource(src SentenceSource) Option {
	return func(s *Store) { s.source = src }
}

// WithPremadeCap overrides DefaultPremadeCap.
func WithPremadeCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.premadeCap = n
		}
	}
}

// WithBatchSize overrides DefaultBatchSize for generated batches.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNull(l) }
}

func WithMetrics(m metrics.ValidationMetrics) Option {
	return func(s *Store) { s.metrics = metrics.OrNoop(m) }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		states:     make(map[Key]*state),
		premadeCap: DefaultPremadeCap,
		batchSize:  DefaultBatchSize,
		logger:     logging.NullLogger{},
		metrics:    metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock returns the locked state of key, creating it if needed.
func (s *Store) lock(key Key) *state {
	s.mu.Lock()
	st, ok := s.states[key]
	if !ok {
		st = &state{}
		s.states[key] = st
	}
	s.mu.Unlock()
	st.mu.Lock()
	return st
}

func (s *Store) premade(phase *content.Phase) []string {
	pool := make([]string, 0, min(len(phase.Sentences), s.premadeCap))
	for _, sentence := range phase.Sentences {
		if len(pool) == s.premadeCap {
			break
		}
		if t := strings.TrimSpace(sentence); t != "" {
			pool = append(pool, t)
		}
	}
	return pool
}

func (s *Store) seed(st *state, phase *content.Phase) {
	if st.ready {
		return
	}
	st.pool = s.premade(phase)
	st.index = 0
	st.premade = true
	st.ready = true
}

// Current returns the target for key without generating. It
// reports false when the pool is exhausted.
func (s *Store) Current(key Key, phase *content.Phase) (Sentence, bool) {
	st := s.lock(key)
	defer st.mu.Unlock()

	s.seed(st, phase)
	if st.exhausted() {
		return Sentence{}, false
	}
	return st.current(), true
}

// Ensure returns the target for key, replacing an exhausted pool
// first.
func (s *Store) Ensure(ctx context.Context, key Key, phase *content.Phase, apiKey string) Sentence {
	st := s.lock(key)
	defer st.mu.Unlock()

	s.seed(st, phase)
	if st.exhausted() {
		s.replace(ctx, st, phase, apiKey)
	}
	return st.current()
}

// ValidateCopy compares text with the target of key. An exact
// match advances the rotation; a mismatch leaves it in place.
func (s *Store) ValidateCopy(
	ctx context.Context, key Key, phase *content.Phase, text, apiKey string,
) CopyResult {
	st := s.lock(key)
	defer st.mu.Unlock()

	s.seed(st, phase)
	if st.exhausted() {
		s.replace(ctx, st, phase, apiKey)
	}

	target := st.pool[st.index]
	if text == target {
		st.index++
		return CopyResult{
			OK:           true,
			Target:       target,
			Remaining:    len(st.pool) - st.index,
			Score:        100,
			UsingPremade: st.premade,
		}
	}
	return CopyResult{
		Target:       target,
		Remaining:    len(st.pool) - st.index,
		ErrorCount:   MismatchCount(text, target),
		UsingPremade: st.premade,
	}
}

// replace installs a generated batch, or FallbackSentences when
// generation is unavailable or fails.
func (s *Store) replace(ctx context.Context, st *state, phase *content.Phase, apiKey string) {
	batch, source := s.generate(ctx, phase, apiKey)
	st.pool = batch
	st.index = 0
	st.premade = false
	s.metrics.RecordSentenceBatch(source)
}

func (s *Store) generate(ctx context.Context, phase *content.Phase, apiKey string) ([]string, string) {
	fallback := func() ([]string, string) {
		out := make([]string, len(FallbackSentences))
		copy(out, FallbackSentences)
		return out, "fallback"
	}
	if s.source == nil {
		return fallback()
	}

	var guidance string
	if v, ok := phase.Validator.(content.HealExactCopy); ok {
		guidance = v.Guidance
	}
	batch, err := s.source.GenerateSentences(ctx, apiKey, s.premade(phase), guidance, s.batchSize)
	if err != nil {
		s.logger.Warn("sentence generation failed, using fallback set",
			logging.IntField("phase", phase.Phase),
			logging.StringField("task_type", phase.TaskType),
			logging.ErrorField(err),
		)
		return fallback()
	}

	out := make([]string, 0, s.batchSize)
	for _, sentence := range batch {
		if t := strings.TrimSpace(sentence); t != "" && len(out) < s.batchSize {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return fallback()
	}
	return out, "generated"
}

// ClearOne skips the current target of key. It reports whether
// anything was skipped.
func (s *Store) ClearOne(key Key) bool {
	s.mu.Lock()
	st, ok := s.states[key]
	s.mu.Unlock()
	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.ready || st.exhausted() {
		return false
	}
	st.index++
	return true
}

// ResetOne returns key to its premade pool at the first sentence.
func (s *Store) ResetOne(key Key, phase *content.Phase) {
	st := s.lock(key)
	defer st.mu.Unlock()
	st.ready = false
	s.seed(st, phase)
}

// ClearAll drops every tracked key.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[Key]*state)
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// MismatchCount compares a and b rune by rune. Each differing
// position and each extra trailing rune of the longer string
// counts once.
func MismatchCount(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	count := len(ra) - len(rb)
	for i := range rb {
		if ra[i] != rb[i] {
			count++
		}
	}
	return count
}
