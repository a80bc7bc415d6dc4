package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.DebugLevel)

	l.WithStr("component", "server").
		WithInt("workers", 4).
		WithBool("running", true).
		WithErr(errors.New("boom")).
		Info("started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "started", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "server", line["component"])
	assert.Equal(t, float64(4), line["workers"])
	assert.Equal(t, true, line["running"])
	assert.Equal(t, "boom", line["error"])
}

func TestWithFieldDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := NewWriter(&buf, zerolog.DebugLevel)

	_ = base.WithStr("request_id", "abc")
	base.Warn("plain")

	assert.NotContains(t, buf.String(), "request_id")
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.WarnLevel)

	l.Debug("hidden")
	l.Info("hidden")
	l.Error("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestNopWithErrNil(t *testing.T) {
	l := Nop()
	assert.Same(t, l, l.WithErr(nil))
	l.Error("dropped")
}

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	l := New()
	l.Init(path)
	l.WithStr("k", "v").Info("to file")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"k":"v"`)
	assert.Contains(t, string(content), "to file")
}
