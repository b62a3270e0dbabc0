// Package metrics records validation, model and sandbox activity.
package metrics

import "time"

// ValidationMetrics defines the interface for recording service
// metrics.
type ValidationMetrics interface {
	// RecordValidation records one dispatched validation.
	RecordValidation(variant string, ok bool, duration time.Duration)
	// RecordAIRequest records one model call attempt.
	RecordAIRequest(operation, outcome string, duration time.Duration)
	// RecordSandboxRun records one player code run.
	RecordSandboxRun(reason string, duration time.Duration)
	// RecordSandboxLeak records a timed-out run whose goroutine
	// was still busy after the grace period.
	RecordSandboxLeak()
	// RecordSentenceBatch records a replacement sentence pool,
	// sourced from "generated" or "fallback".
	RecordSentenceBatch(source string)
	// SetActiveSessions sets the live session gauge.
	SetActiveSessions(count int)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordValidation(string, bool, time.Duration)   {}
func (NoopMetrics) RecordAIRequest(string, string, time.Duration) {}
func (NoopMetrics) RecordSandboxRun(string, time.Duration)        {}
func (NoopMetrics) RecordSandboxLeak()                            {}
func (NoopMetrics) RecordSentenceBatch(string)                    {}
func (NoopMetrics) SetActiveSessions(int)                         {}

// OrNoop returns m, or NoopMetrics when m is nil.
func OrNoop(m ValidationMetrics) ValidationMetrics {
	if m == nil {
		return NoopMetrics{}
	}
	return m
}
