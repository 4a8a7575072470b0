package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyLogger_FollowsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	// 先创建 logger，再切换输出
	l := Logger("test/lazy")

	buf := &bytes.Buffer{}
	SetOutput(buf)

	l.Info("hello", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "component=test/lazy")
}

func TestSetOutputWithLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	SetOutputWithLevel(buf, LevelWarn)

	l := Logger("test/level")
	l.Info("filtered")
	l.Warn("kept")

	assert.NotContains(t, buf.String(), "filtered")
	assert.Contains(t, buf.String(), "kept")
}

func TestConfigure_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	Configure(buf, "json", LevelDebug)
	Logger("test/json").Debug("msg", "n", 1)

	assert.Contains(t, buf.String(), `"component":"test/json"`)
	assert.Contains(t, buf.String(), `"n":1`)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   LevelDebug,
		"":        LevelInfo,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", TruncateID("abc", 8))
	assert.Equal(t, "abcdefgh", TruncateID("abcdefghijk", 8))
}

func TestSetLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	SetLevel(LevelError)
	assert.False(t, slog.Default().Enabled(context.Background(), LevelWarn))
	assert.True(t, slog.Default().Enabled(context.Background(), LevelError))
}
