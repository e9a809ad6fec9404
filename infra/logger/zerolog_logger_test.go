package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"k": "v"})
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerFields(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	defer func() { _ = SetLevel("info") }()

	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "solver")
	l.Infow("solved", map[string]any{"status": "Optimal", "nodes": 3})

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "solver", line["component"])
	assert.Equal(t, "Optimal", line["status"])
	assert.Equal(t, float64(3), line["nodes"])
	assert.Equal(t, "info", line["level"])
}

func TestSetLevel(t *testing.T) {
	defer func() { _ = SetLevel("info") }()
	require.NoError(t, SetLevel("WARN"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	var buf bytes.Buffer
	NewZerologLoggerTo(&buf, "x").Infof("hidden")
	assert.False(t, strings.Contains(buf.String(), "hidden"))

	assert.Error(t, SetLevel("loud"))
}
