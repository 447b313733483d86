package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConfigureJSON(t *testing.T) {
	t.Cleanup(func() { Discard(); SetLevel(slog.LevelInfo) })

	var buf bytes.Buffer
	require.NoError(t, Configure("warn", "json", &buf))

	Logger.Info("hidden")
	Logger.Warn("shown", "stage", "digest")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "digest", rec["stage"])
	assert.Equal(t, slog.LevelWarn, Level())
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Configure("info", "xml", nil))
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { Discard(); SetLevel(slog.LevelInfo) })

	var buf bytes.Buffer
	SetOutput(&buf, false)
	SetLevel(slog.LevelDebug)
	Logger.Debug("state transition", "state", "KeyLoaded")

	assert.Contains(t, buf.String(), "state=KeyLoaded")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithContext(context.Background(), l)

	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
