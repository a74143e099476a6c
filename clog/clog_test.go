package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(t *testing.T, level string, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger, err := New(&Config{Level: level, Format: "json"}, append(opts, WithWriter(buf))...)
	require.NoError(t, err)
	return logger, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "合法配置", config: &Config{Level: "info", Format: "console", Output: "stdout"}},
		{name: "nil 配置使用默认值", config: nil},
		{name: "非法级别", config: &Config{Level: "verbose"}, wantErr: true},
		{name: "非法格式", config: &Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	logger, buf := newJSONLogger(t, "info", WithNamespace("gateway", "ratelimit"))

	logger.With(String("component", "ratelimit")).Error("store failed",
		String("route", "orders"),
		Int64("remaining", -1),
		Error(errors.New("connection refused")),
		Error(nil),
	)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "store failed", entry["msg"])
	assert.Equal(t, "gateway.ratelimit", entry[NamespaceKey])
	assert.Equal(t, "ratelimit", entry["component"])
	assert.Equal(t, "orders", entry["route"])
	assert.Equal(t, float64(-1), entry["remaining"])
	assert.Equal(t, "connection refused", entry["err_msg"])
	_, hasEmpty := entry[""]
	assert.False(t, hasEmpty, "nil 错误字段不应输出")
}

func TestLogger_LevelFilterAndSetLevel(t *testing.T) {
	logger, buf := newJSONLogger(t, "info")

	logger.Debug("hidden")
	assert.Empty(t, buf.String(), "info 级别不应输出 debug")

	require.NoError(t, logger.SetLevel(DebugLevel))
	logger.Debug("visible")
	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "DEBUG", entries[0]["level"])
}

func TestLogger_ContextFields(t *testing.T) {
	logger, buf := newJSONLogger(t, "info", WithStandardContext())

	ctx := context.WithValue(context.Background(), "request_id", "req-1")
	logger.InfoContext(ctx, "decision")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0]["request_id"])
	_, ok := entries[0]["trace_id"]
	assert.False(t, ok, "ctx 中不存在的字段不应输出")
}

func TestLogger_WithNamespaceDoesNotLeak(t *testing.T) {
	logger, buf := newJSONLogger(t, "info", WithNamespace("gateway"))

	child := logger.WithNamespace("store")
	child.Info("child")
	logger.Info("parent")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "gateway.store", entries[0][NamespaceKey])
	assert.Equal(t, "gateway", entries[1][NamespaceKey])
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, level)
	assert.Equal(t, "warn", level.String())

	level, err = ParseLevel("unknown")
	assert.Error(t, err)
	assert.Equal(t, InfoLevel, level)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() {
		logger.With(String("k", "v")).WithNamespace("x").Info("nothing")
		logger.ErrorContext(context.Background(), "nothing")
		assert.NoError(t, logger.SetLevel(DebugLevel))
	})
}
