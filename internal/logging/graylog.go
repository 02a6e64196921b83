package logging

import (
	"fmt"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogWriter opens a UDP GELF writer to addr.
func NewGraylogWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create graylog writer: %w", err)
	}
	w.Facility = "placer"
	return w, nil
}

// NewGraylogHandler formats records as JSON lines for a GELF writer.
func NewGraylogHandler(w *gelf.Writer, level string) slog.Handler {
	return slog.NewJSONHandler(w, handlerOptions(level))
}
