package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}
	return out
}

func TestDispatcherLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	dl.Debug("Dispatching", "type", "spawn", "seq", 1)
	dl.Info("Handler registered", "route", "cmd:attack")
	dl.Error("Handler failed", "error", "invalid reference")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)

	levels := []string{"DEBUG", "INFO", "ERROR"}
	for i, e := range entries {
		assert.Equal(t, levels[i], e["level"])
		assert.Equal(t, "dispatcher", e["component"])
	}
	assert.Equal(t, "spawn", entries[0]["type"])
	assert.Equal(t, float64(1), entries[0]["seq"])
	assert.Equal(t, "cmd:attack", entries[1]["route"])
	assert.Equal(t, "invalid reference", entries[2]["error"])
}

func TestDispatcherLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dl.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestDispatcherLogger_NilFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	NewDispatcherLogger(nil).Info("via default")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "via default", entries[0]["msg"])
	assert.Equal(t, "dispatcher", entries[0]["component"])
}
