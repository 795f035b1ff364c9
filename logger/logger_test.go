package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestInitializeTo_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	InitializeTo(&buf, "info", "json")
	t.Cleanup(func() { Initialize("info", "text") })

	WithService("membership").Info("Member approved", "member_id", "m-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "Member approved", entry["msg"])
	assert.Equal(t, "membership", entry["service"])
	assert.Equal(t, "m-1", entry["member_id"])
}

func TestDatabaseResult_LevelFollowsError(t *testing.T) {
	var buf bytes.Buffer
	InitializeTo(&buf, "info", "text")
	t.Cleanup(func() { Initialize("info", "text") })

	// Success is logged at debug and filtered out at info.
	DatabaseCall("SavePayment", "payment_id", "p-1")
	DatabaseResult("SavePayment", 1, nil)
	assert.Empty(t, buf.String())

	DatabaseResult("SavePayment", 0, errors.New("disk full"))
	assert.Contains(t, buf.String(), "Database call failed")
	assert.Contains(t, buf.String(), "disk full")
}
