package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/geoarkit/placer/internal/dispatcher"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ dispatcher.Logger = (*ActionLogger)(nil)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestActionLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(*ActionLogger)
	}{
		{"debug", func(l *ActionLogger) { l.Debug("Action queued", "action", "export-data", "args", 0) }},
		{"info", func(l *ActionLogger) { l.Info("Action queued", "action", "export-data", "args", 0) }},
		{"error", func(l *ActionLogger) { l.Error("Action queued", "action", "export-data", "args", 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewActionLogger(zerolog.New(&buf)))

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "Action queued", entry["message"])
			assert.Equal(t, "dispatcher", entry["component"])
			assert.Equal(t, "export-data", entry["action"])
			assert.Equal(t, float64(0), entry["args"])
		})
	}
}

func TestActionLogger_DropsBadPairs(t *testing.T) {
	var buf bytes.Buffer
	NewActionLogger(zerolog.New(&buf)).Info("msg", 42, "x", "dangling")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, "dangling")
	assert.NotContains(t, entry, "x")
	assert.Len(t, entry, 3)
}

func TestActionLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	NewActionLogger(zerolog.New(&buf).Level(zerolog.InfoLevel)).Debug("hidden")
	assert.Empty(t, buf.String())
}
