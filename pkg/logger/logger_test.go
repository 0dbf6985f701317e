package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	ctx := WithComponent(WithMessageID(WithTraceID(context.Background(), "corr-1"), "msg-9"), "consumer")
	log.Infof(ctx, "[Consumer] order %d persisted", 42)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "[Consumer] order 42 persisted", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "corr-1", fields["trace_id"])
	assert.Equal(t, "msg-9", fields["message_id"])
	assert.Equal(t, "consumer", fields["component"])
	assert.Equal(t, "corr-1", TraceID(ctx))
}

func TestEmptyContextAddsNoFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	log.Warnf(context.Background(), "plain")
	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNewZapLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echobase.log")
	log, err := NewZapLogger(Options{Level: "info", FilePath: path})
	require.NoError(t, err)

	log.Debugf(context.Background(), "dropped")
	log.Infof(WithTraceID(context.Background(), "corr-2"), "kept")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kept"`)
	assert.Contains(t, string(data), `"trace_id":"corr-2"`)
	assert.NotContains(t, string(data), "dropped")
}
