package logging

import "github.com/rs/zerolog"

// ActionLogger writes dispatcher events to zerolog under component=dispatcher.
// Key/value pairs are passed through in order; a dangling key or a non-string
// key is dropped together with its value.
type ActionLogger struct {
	logger zerolog.Logger
}

// NewActionLogger creates an ActionLogger.
func NewActionLogger(logger zerolog.Logger) *ActionLogger {
	return &ActionLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (l *ActionLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *ActionLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l *ActionLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}
