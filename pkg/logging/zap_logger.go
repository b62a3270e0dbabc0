package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig configures a ZapLogger.
type LoggerConfig struct {
	// Level is the minimum level emitted.
	Level LogLevel
	// Format is "json" or "console".
	Format string
	// OutputPath is a file path; empty means stdout.
	OutputPath string
	// Fields are attached to every entry.
	Fields map[string]any
}

// ZapLogger implements Logger on top of a zap core.
type ZapLogger struct {
	zap *zap.Logger
}

// NewZapLogger builds a ZapLogger from config.
func NewZapLogger(config LoggerConfig) (*ZapLogger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch config.Format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format: %s", config.Format)
	}

	var sink zapcore.WriteSyncer
	if config.OutputPath == "" {
		sink = zapcore.AddSync(os.Stdout)
	} else {
		if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
			return nil, fmt.Errorf(
				"failed to create log directory: %w", err,
			)
		}
		file, err := os.OpenFile(
			config.OutputPath,
			os.O_CREATE|os.O_WRONLY|os.O_APPEND,
			0644,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to open log file: %w", err,
			)
		}
		sink = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(encoder, sink, zapLevel(config.Level))
	logger := NewZapLoggerFromCore(core)
	if len(config.Fields) > 0 {
		fields := make([]Field, 0, len(config.Fields))
		for k, v := range config.Fields {
			fields = append(fields, Field{Key: k, Value: v})
		}
		return &ZapLogger{zap: logger.zap.With(toZap(fields)...)}, nil
	}
	return logger, nil
}

// NewZapLoggerFromCore wraps an existing zap core. Tests use it
// with an observer core.
func NewZapLoggerFromCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{
		zap: zap.New(core,
			zap.AddCaller(),
			zap.AddCallerSkip(1),
			zap.AddStacktrace(zapcore.ErrorLevel),
		),
	}
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

// Info logs an informational message.
func (l *ZapLogger) Info(msg string, fields ...Field) {
	l.zap.Info(msg, toZap(fields)...)
}

// Warn logs a warning message.
func (l *ZapLogger) Warn(msg string, fields ...Field) {
	l.zap.Warn(msg, toZap(fields)...)
}

// Error logs an error message.
func (l *ZapLogger) Error(msg string, fields ...Field) {
	l.zap.Error(msg, toZap(fields)...)
}

// Debug logs a debug message.
func (l *ZapLogger) Debug(msg string, fields ...Field) {
	l.zap.Debug(msg, toZap(fields)...)
}

// WithFields returns a child logger carrying the given fields.
func (l *ZapLogger) WithFields(fields ...Field) Logger {
	return &ZapLogger{zap: l.zap.With(toZap(fields)...)}
}

// LogAPIRequest records an outbound model call at debug level.
func (l *ZapLogger) LogAPIRequest(request APIRequestLog) {
	if request.Timestamp == "" {
		request.Timestamp = time.Now().Format(time.RFC3339Nano)
	}
	l.zap.Debug("api_request",
		zap.String("request_id", request.RequestID),
		zap.String("operation", request.Operation),
		zap.String("model", request.Model),
		zap.Int("attempt", request.Attempt),
		zap.Int("prompt_length", request.PromptLength),
	)
}

// LogAPIResponse records the outcome of a model call. Failed
// outcomes are logged at warn level.
func (l *ZapLogger) LogAPIResponse(response APIResponseLog) {
	fields := []zap.Field{
		zap.String("request_id", response.RequestID),
		zap.String("outcome", response.Outcome),
		zap.Int("status_code", response.StatusCode),
		zap.Int("text_length", response.TextLength),
		zap.Int("total_tokens", response.TotalTokens),
		zap.Int64("response_time_ms", response.ResponseTimeMs),
	}
	if response.Outcome == "ok" {
		l.zap.Debug("api_response", fields...)
		return
	}
	l.zap.Warn("api_response", fields...)
}

// Close flushes buffered entries. Sync errors on terminals are
// ignored.
func (l *ZapLogger) Close() error {
	_ = l.zap.Sync()
	return nil
}
