package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

func TestFromContext(t *testing.T) {
	t.Run("Should fall back to the global logger", func(t *testing.T) {
		assert.Same(t, Logger(), FromContext(context.Background()))
	})
	t.Run("Should return the scoped logger with its fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, zapcore.DebugLevel)
		ctx := WithKV(ToContext(context.Background(), l), "package", "attrs")
		DebugKV(ctx, "resolved", "version", "23.1.0")
		require.NoError(t, FromContext(ctx).Sync())
		assert.Contains(t, buf.String(), "resolved")
		assert.Contains(t, buf.String(), `"package": "attrs"`)
		assert.Contains(t, buf.String(), `"version": "23.1.0"`)
	})
	t.Run("Should respect the level of the scoped logger", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := ToContext(context.Background(), NewWithWriter(&buf, zapcore.WarnLevel))
		Infof(ctx, "hidden %d", 1)
		Warnf(ctx, "shown %d", 2)
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown 2")
	})
}
