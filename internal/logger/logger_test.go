package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Production(t *testing.T) {
	var buf bytes.Buffer
	log := Init(Options{Output: &buf})

	log.Debug("hidden")
	log.Info("query executed", "kind", "batch", "rows", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "query executed", entry["msg"])
	assert.Equal(t, "batch", entry["kind"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.Same(t, log, slog.Default())
}

func TestInit_Development(t *testing.T) {
	var buf bytes.Buffer
	log := Init(Options{Development: true, Output: &buf})

	log.Debug("conflict", "file_id", "abc")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "file_id=abc")
}
