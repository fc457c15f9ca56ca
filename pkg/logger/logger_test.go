package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithContextAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Get()
	Set(zap.New(core))
	t.Cleanup(func() { Set(prev) })

	ctx := context.WithValue(context.Background(), WriterKeyKey, "7-1-LZ4_FRAME")
	ctx = context.WithValue(ctx, TableIDKey, int64(7))
	WithContext(ctx).Info("batch built")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "7-1-LZ4_FRAME", fields["writer_key"])
	assert.Equal(t, int64(7), fields["table_id"])
	_, hasSegment := fields["segment"]
	assert.False(t, hasSegment)
}

func TestOrGlobal(t *testing.T) {
	l := zap.NewNop()
	assert.Same(t, l, OrGlobal(l))
	assert.NotNil(t, OrGlobal(nil))
}
