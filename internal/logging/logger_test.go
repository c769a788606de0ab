package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WarnLevel, &buf)

	logger.Info("hidden")
	logger.Warn("shown", map[string]interface{}{"iteration": 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(3), entry["iteration"])
}

func TestLoggerFieldsAreCopied(t *testing.T) {
	var buf bytes.Buffer
	base := New(DebugLevel, &buf)
	child := base.Named("engine").WithField("run_id", "r1")

	base.Info("base")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "run_id")
	assert.Contains(t, lines[1], `"component":"engine"`)
	assert.Contains(t, lines[1], `"run_id":"r1"`)
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf).WithFormat(FormatText)
	logger.Info("period done", map[string]interface{}{"period": 2020})

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "period done")
	assert.Contains(t, out, "period=2020")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, FatalLevel, ParseLevel("CRITICAL"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestZapAdapterForwardsFields(t *testing.T) {
	var buf bytes.Buffer
	z := NewZapLogger(New(DebugLevel, &buf)).Named("engine")

	z.Debug("best gene", zap.Float64("score", -12.5), zap.Int("iteration", 4))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "best gene", entry["message"])
	assert.Equal(t, -12.5, entry["score"])
	assert.Equal(t, float64(4), entry["iteration"])
	assert.Equal(t, "engine", entry["logger"])
}

func TestZapAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	z := NewZapLogger(New(ErrorLevel, &buf))
	z.Info("dropped")
	assert.Empty(t, buf.String())
}
