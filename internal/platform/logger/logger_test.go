package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/bookrender/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := ParseLevel(tc.input)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	buf := &TestLogBuffer{}
	l, err := setup(buf, config.ServerConfig{LogLevel: "warn"})
	require.NoError(t, err)
	require.NotNil(t, l)

	slog.Info("hidden")
	slog.Warn("visible", "task_id", "abc")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible", entries[0]["msg"])
	assert.Equal(t, "WARN", entries[0]["level"])
	AssertLogField(t, buf, "task_id", "abc")
}

func TestSetupInvalidLevel(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	buf := &TestLogBuffer{}
	_, err := setup(buf, config.ServerConfig{LogLevel: "loud"})
	require.NoError(t, err)

	AssertLogContains(t, buf, "invalid log level configured")
	AssertLogField(t, buf, "configured_level", "loud")
}

func TestContextLogger(t *testing.T) {
	l, buf := GetTestLogger(t)
	fallback, fallbackBuf := GetTestLogger(t)

	ctx := WithLogger(context.Background(), l)
	FromContextOrDefault(ctx, fallback).Info("from context")
	FromContextOrDefault(context.Background(), fallback).Info("from fallback")

	AssertLogContains(t, buf, "from context")
	AssertLogContains(t, fallbackBuf, "from fallback")
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}
