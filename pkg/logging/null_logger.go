package logging

// NullLogger discards everything. Components default to it when
// no logger is configured.
type NullLogger struct{}

func (NullLogger) Info(string, ...Field)  {}
func (NullLogger) Warn(string, ...Field)  {}
func (NullLogger) Error(string, ...Field) {}
func (NullLogger) Debug(string, ...Field) {}

func (n NullLogger) WithFields(...Field) Logger { return n }

func (NullLogger) LogAPIRequest(APIRequestLog)   {}
func (NullLogger) LogAPIResponse(APIResponseLog) {}

func (NullLogger) Close() error { return nil }

// OrNull returns l, or a NullLogger when l is nil.
func OrNull(l Logger) Logger {
	if l == nil {
		return NullLogger{}
	}
	return l
}
