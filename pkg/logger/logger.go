package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging facade used across the module.
type Logger interface {
	Debugf(ctx context.Context, format string, args ...interface{})
	Infof(ctx context.Context, format string, args ...interface{})
	Warnf(ctx context.Context, format string, args ...interface{})
	Errorf(ctx context.Context, format string, args ...interface{})
	Sync() error
}

type ctxKey int

const (
	traceIDKey ctxKey = iota
	messageIDKey
	componentKey
)

// WithTraceID stores the correlation id that every log line of this unit of work carries.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the correlation id stored by WithTraceID.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// WithMessageID stores the queue message id being handled.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageIDKey, messageID)
}

// WithComponent tags log lines with the emitting component.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// Options configures the zap backed logger.
type Options struct {
	Level      string
	FilePath   string // empty writes stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ZapLogger is the zap implementation of Logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger builds a JSON logger writing to stdout and, when FilePath is set, a rotated file.
func NewZapLogger(opts Options) (Logger, error) {
	level := parseLevel(opts.Level)

	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}

	if opts.FilePath != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), zap.NewAtomicLevelAt(level))
	return &ZapLogger{logger: zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr)))}, nil
}

// NewFromZap wraps an existing zap logger; tests use it with zaptest/observer.
func NewFromZap(l *zap.Logger) Logger {
	return &ZapLogger{logger: l}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &ZapLogger{logger: zap.NewNop()}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// extractFields pulls the correlation fields out of ctx.
func (l *ZapLogger) extractFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 3)

	if traceID, ok := ctx.Value(traceIDKey).(string); ok && traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if messageID, ok := ctx.Value(messageIDKey).(string); ok && messageID != "" {
		fields = append(fields, zap.String("message_id", messageID))
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, zap.String("component", component))
	}

	return fields
}

// Debugf logs at debug level.
func (l *ZapLogger) Debugf(ctx context.Context, format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), l.extractFields(ctx)...)
}

// Infof logs at info level.
func (l *ZapLogger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...), l.extractFields(ctx)...)
}

// Warnf logs at warn level.
func (l *ZapLogger) Warnf(ctx context.Context, format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), l.extractFields(ctx)...)
}

// Errorf logs at error level.
func (l *ZapLogger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), l.extractFields(ctx)...)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
