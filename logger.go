package netconf

import "github.com/rs/zerolog"

type Logger interface {
	Printf(string, ...any)
	Debugf(string, ...any)
	Infof(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)
}

type noOpLogger struct{}

func (l *noOpLogger) Printf(_ string, _ ...any) {}
func (l *noOpLogger) Debugf(_ string, _ ...any) {}
func (l *noOpLogger) Infof(_ string, _ ...any)  {}
func (l *noOpLogger) Warnf(_ string, _ ...any)  {}
func (l *noOpLogger) Errorf(_ string, _ ...any) {}

type zerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger adapts l to [Logger].  Printf logs without a level.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLogger{l: l.With().Str("component", "netconf").Logger()}
}

func (z *zerologLogger) Printf(format string, args ...any) { z.l.Log().Msgf(format, args...) }
func (z *zerologLogger) Debugf(format string, args ...any) { z.l.Debug().Msgf(format, args...) }
func (z *zerologLogger) Infof(format string, args ...any)  { z.l.Info().Msgf(format, args...) }
func (z *zerologLogger) Warnf(format string, args ...any)  { z.l.Warn().Msgf(format, args...) }
func (z *zerologLogger) Errorf(format string, args ...any) { z.l.Error().Msgf(format, args...) }
