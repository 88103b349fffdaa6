package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "json", "info", false)

	ctx := WithRequestID(context.Background(), "req-123")
	log.InfoContext(ctx, "registered", "event_id", 7)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "registered", rec["msg"])
	assert.Equal(t, "req-123", rec["request_id"])
	assert.Equal(t, float64(7), rec["event_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "text", "warn", false)

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestTextLoggerColorsErrors(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "", "debug", false)

	log.Error("store down")

	assert.True(t, strings.Contains(buf.String(), "[31mstore down"))
}

func TestProductionDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "", "info", true).Info("hello")

	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
