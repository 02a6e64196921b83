package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func parseZerologLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// NewZerolog builds the zerolog logger used by the database, telemetry and
// HTTP layers. Console output goes to file, or stdout when file is nil; extra
// writers (e.g. GELF) receive JSON.
func NewZerolog(file io.Writer, level string, provider ContextProvider, extra ...io.Writer) zerolog.Logger {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	console := zerolog.ConsoleWriter{Out: osStdout, TimeFormat: time.RFC3339}
	if file != nil {
		console = zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true}
	}
	writers := append([]io.Writer{console}, extra...)

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseZerologLevel(level)).
		With().Timestamp().Logger()

	if provider != nil {
		logger = logger.Hook(zerolog.HookFunc(
			func(e *zerolog.Event, _ zerolog.Level, _ string) {
				for _, a := range provider() {
					e.Interface(a.Key, a.Value.Any())
				}
			}))
	}
	return logger
}
