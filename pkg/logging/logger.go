// Package logging provides structured logging for the validation
// service, backed by zap, with redacting and multi-destination
// decorators.
package logging

import (
	"fmt"
	"strings"
)

// Logger defines the interface for structured service logging.
type Logger interface {
	// Info logs an informational message.
	Info(msg string, fields ...Field)

	// Warn logs a warning message.
	Warn(msg string, fields ...Field)

	// Error logs an error message.
	Error(msg string, fields ...Field)

	// Debug logs a debug-level message.
	Debug(msg string, fields ...Field)

	// WithFields returns a Logger with additional default
	// fields attached to every subsequent log entry.
	WithFields(fields ...Field) Logger

	// LogAPIRequest logs an outbound generative model request.
	LogAPIRequest(request APIRequestLog)

	// LogAPIResponse logs the outcome of a generative model
	// request.
	LogAPIResponse(response APIResponseLog)

	// Close flushes any buffers and releases resources.
	Close() error
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// APIRequestLog captures one outbound model call attempt. The
// prompt itself is never logged, only its size.
type APIRequestLog struct {
	Timestamp    string `json:"timestamp"`
	RequestID    string `json:"request_id"`
	Operation    string `json:"operation"`
	Model        string `json:"model"`
	Attempt      int    `json:"attempt"`
	PromptLength int    `json:"prompt_length"`
}

// APIResponseLog captures the outcome of one model call attempt.
type APIResponseLog struct {
	Timestamp       string `json:"timestamp"`
	RequestID       string `json:"request_id"`
	Outcome         string `json:"outcome"`
	StatusCode      int    `json:"status_code,omitempty"`
	TextLength      int    `json:"text_length"`
	PromptTokens    int    `json:"prompt_tokens,omitempty"`
	CandidateTokens int    `json:"candidate_tokens,omitempty"`
	TotalTokens     int    `json:"total_tokens,omitempty"`
	ResponseTimeMs  int64  `json:"response_time_ms"`
}

// LogLevel represents logging severity levels.
type LogLevel int

const (
	// LevelDebug is the most verbose level.
	LevelDebug LogLevel = iota
	// LevelInfo is the default level.
	LevelInfo
	// LevelWarn indicates potential issues.
	LevelWarn
	// LevelError indicates failures.
	LevelError
)

// String returns the string representation of a log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a
// LogLevel. An empty name yields LevelInfo.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", name)
	}
}
