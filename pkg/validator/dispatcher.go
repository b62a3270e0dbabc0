// Package validator judges player answers against the validator
// attached to a phase. Dispatcher is the error boundary of the
// whole judging path: every call returns a Result and no error or
// panic escapes it.
package validator

import (
	"context"
	"fmt"
	"time"

	"digital.vasic.prompthunter/pkg/aiscore"
	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/metrics"
	"digital.vasic.prompthunter/pkg/monitor"
	"digital.vasic.prompthunter/pkg/rotation"
	"digital.vasic.prompthunter/pkg/sandbox"
)

// Messages shared by several handlers.
const (
	MsgNoValidator      = "No validator for this phase"
	MsgUnknownValidator = "Unknown validator"
	MsgInternalError    = "Internal validation error"
)

// Extras carries inputs some variants read besides the answer.
type Extras struct {
	SongTitle  string
	SongArtist string
	APIKey     string
	// Role is embedded in AI scoring prompts when set.
	Role *content.Role
}

// Result is the verdict of one validation.
type Result struct {
	OK                 bool   `json:"ok"`
	Message            string `json:"message"`
	Score              *int   `json:"score,omitempty"`
	TargetSentence     string `json:"target_sentence,omitempty"`
	SentencesRemaining *int   `json:"sentences_remaining,omitempty"`
	ErrorCount         *int   `json:"error_count,omitempty"`
	Variant            string `json:"variant,omitempty"`
}

// Scorer judges free-form answers remotely.
type Scorer interface {
	Score(ctx context.Context, req aiscore.ScoreRequest) (aiscore.ScoreResult, error)
}

// Rotation checks copy-typing answers.
type Rotation interface {
	ValidateCopy(
		ctx context.Context, key rotation.Key, phase *content.Phase, text, apiKey string,
	) rotation.CopyResult
}

// Dispatcher routes a validation to the handler of the phase's
// validator variant.
type Dispatcher struct {
	sandbox  sandbox.Executor
	scorer   Scorer
	rotation Rotation
	logger   logging.Logger
	metrics  metrics.ValidationMetrics
	events   monitor.Sink
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSandbox sets the executor used by js_eval.
func WithSandbox(e sandbox.Executor) Option {
	return func(d *Dispatcher) { d.sandbox = e }
}

// WithScorer sets the remote judge used by ai_score.
func WithScorer(s Scorer) Option {
	return func(d *Dispatcher) { d.scorer = s }
}

// WithRotation sets the sentence rotation used by heal_exact_copy.
func WithRotation(r Rotation) Option {
	return func(d *Dispatcher) { d.rotation = r }
}

func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.OrNull(l) }
}

func WithMetrics(m metrics.ValidationMetrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics.OrNoop(m) }
}

// WithEvents sets where validation events are emitted.
func WithEvents(s monitor.Sink) Option {
	return func(d *Dispatcher) { d.events = monitor.OrNop(s) }
}

// NewDispatcher creates a Dispatcher. Variants whose collaborator
// is not configured fail with a message instead of panicking.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:  logging.NullLogger{},
		metrics: metrics.NoopMetrics{},
		events:  monitor.NopSink{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Validate judges text against phase's validator.
func (d *Dispatcher) Validate(
	ctx context.Context, phase *content.Phase, text string, extras Extras,
) (res Result) {
	start := time.Now()
	variant := variantOf(phase)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("validator panicked",
				logging.StringField("variant", variant),
				logging.StringField("panic", fmt.Sprint(r)),
			)
			res = Result{Message: MsgInternalError}
		}
		res.Variant = publicVariant(phase, variant)
		d.record(phase, variant, res, time.Since(start))
	}()

	if phase == nil || phase.Validator == nil {
		return Result{Message: MsgNoValidator}
	}
	return d.dispatch(ctx, phase, text, extras)
}

func variantOf(phase *content.Phase) string {
	if phase == nil || phase.Validator == nil {
		return "none"
	}
	return string(phase.Validator.Kind())
}

// publicVariant is the variant shown to players and the event feed.
// Mysterious phases stay disguised.
func publicVariant(phase *content.Phase, variant string) string {
	if phase != nil {
		if _, ok := phase.Validator.(content.Mysterious); ok {
			return ""
		}
	}
	return variant
}

func (d *Dispatcher) record(phase *content.Phase, variant string, res Result, elapsed time.Duration) {
	d.metrics.RecordValidation(variant, res.OK, elapsed)

	var phaseNum int
	var taskType string
	if phase != nil {
		phaseNum, taskType = phase.Phase, phase.TaskType
	}
	d.logger.Info("answer validated",
		logging.IntField("phase", phaseNum),
		logging.StringField("task_type", taskType),
		logging.StringField("variant", variant),
		logging.BoolField("ok", res.OK),
		logging.DurationField("duration", elapsed),
	)
	d.events.Emit(monitor.Event{
		Type:     monitor.EventValidated,
		Phase:    phaseNum,
		TaskType: taskType,
		Variant:  res.Variant,
		OK:       res.OK,
		Score:    res.Score,
		Message:  res.Message,
		Duration: elapsed,
	})
}

func intPtr(n int) *int { return &n }
