package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraylogWriter(t *testing.T) {
	w, err := NewGraylogWriter("127.0.0.1:12201")
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "placer", w.Facility)

	h := NewGraylogHandler(w, "info")
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	slog.New(h).Info("shipped")
}

func TestGraylogWriter_BadAddress(t *testing.T) {
	_, err := NewGraylogWriter("no-port")
	assert.Error(t, err)
}
