package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNew_WritesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Service: "api", Env: "test", Level: "info", Output: &buf})

	Component(base, "Cart").Info("item added", "product_id", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, "Cart", entry["component"])
	assert.Equal(t, "item added", entry["msg"])
	assert.EqualValues(t, 3, entry["product_id"])
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Service: "api", Level: "warn", Output: &buf})

	base.Info("ignored")
	assert.Zero(t, buf.Len())
}
