package logging

import (
	"regexp"
	"strings"
)

// geminiKeyPattern matches anything shaped like a Google API key
// so that keys supplied per request are masked even when they
// were never registered as secrets.
var geminiKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{26,}`)

// RedactingLogger is a decorator that redacts sensitive strings
// from log messages and field values before passing them to the
// inner logger.
type RedactingLogger struct {
	inner   Logger
	secrets []string
}

// NewRedactingLogger creates a logger that redacts the given
// secrets, and any API-key shaped token, from all messages and
// string field values.
func NewRedactingLogger(
	inner Logger,
	secrets ...string,
) *RedactingLogger {
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(s) > 4 {
			kept = append(kept, s)
		}
	}
	return &RedactingLogger{
		inner:   inner,
		secrets: kept,
	}
}

func (r *RedactingLogger) redact(msg string) string {
	result := msg
	for _, secret := range r.secrets {
		result = strings.ReplaceAll(
			result, secret, redactValue(secret),
		)
	}
	return geminiKeyPattern.ReplaceAllStringFunc(result, redactValue)
}

// redactValue masks all but the first 4 characters.
func redactValue(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

func (r *RedactingLogger) redactFields(
	fields []Field,
) []Field {
	result := make([]Field, len(fields))
	for i, f := range fields {
		switch v := f.Value.(type) {
		case string:
			result[i] = Field{Key: f.Key, Value: r.redact(v)}
		case error:
			result[i] = Field{Key: f.Key, Value: r.redact(v.Error())}
		default:
			result[i] = f
		}
	}
	return result
}

// Info logs a redacted informational message.
func (r *RedactingLogger) Info(
	msg string, fields ...Field,
) {
	r.inner.Info(r.redact(msg), r.redactFields(fields)...)
}

// Warn logs a redacted warning message.
func (r *RedactingLogger) Warn(
	msg string, fields ...Field,
) {
	r.inner.Warn(r.redact(msg), r.redactFields(fields)...)
}

// Error logs a redacted error message.
func (r *RedactingLogger) Error(
	msg string, fields ...Field,
) {
	r.inner.Error(r.redact(msg), r.redactFields(fields)...)
}

// Debug logs a redacted debug message.
func (r *RedactingLogger) Debug(
	msg string, fields ...Field,
) {
	r.inner.Debug(r.redact(msg), r.redactFields(fields)...)
}

// WithFields returns a RedactingLogger wrapping a new inner
// logger with the given fields applied.
func (r *RedactingLogger) WithFields(
	fields ...Field,
) Logger {
	return &RedactingLogger{
		inner: r.inner.WithFields(
			r.redactFields(fields)...,
		),
		secrets: r.secrets,
	}
}

// LogAPIRequest forwards a request record. The model name is the
// only free-text field and is redacted like any message.
func (r *RedactingLogger) LogAPIRequest(
	request APIRequestLog,
) {
	request.Model = r.redact(request.Model)
	r.inner.LogAPIRequest(request)
}

// LogAPIResponse forwards a response record with a redacted
// outcome string.
func (r *RedactingLogger) LogAPIResponse(
	response APIResponseLog,
) {
	response.Outcome = r.redact(response.Outcome)
	r.inner.LogAPIResponse(response)
}

// Close closes the inner logger.
func (r *RedactingLogger) Close() error {
	return r.inner.Close()
}
