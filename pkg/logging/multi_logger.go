package logging

import "errors"

// MultiLogger fans out log calls to several loggers, typically
// stdout plus an optional log file.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to every non-nil
// destination.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	kept := make([]Logger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			kept = append(kept, l)
		}
	}
	return &MultiLogger{loggers: kept}
}

func (m *MultiLogger) Info(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Info(msg, fields...)
	}
}

func (m *MultiLogger) Warn(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Warn(msg, fields...)
	}
}

func (m *MultiLogger) Error(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Error(msg, fields...)
	}
}

func (m *MultiLogger) Debug(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Debug(msg, fields...)
	}
}

// WithFields applies fields to each destination.
func (m *MultiLogger) WithFields(fields ...Field) Logger {
	next := make([]Logger, len(m.loggers))
	for i, l := range m.loggers {
		next[i] = l.WithFields(fields...)
	}
	return &MultiLogger{loggers: next}
}

func (m *MultiLogger) LogAPIRequest(request APIRequestLog) {
	for _, l := range m.loggers {
		l.LogAPIRequest(request)
	}
}

func (m *MultiLogger) LogAPIResponse(response APIResponseLog) {
	for _, l := range m.loggers {
		l.LogAPIResponse(response)
	}
}

// Close closes every destination and joins their errors.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
