package natsserver

import "github.com/rs/zerolog"

// serverLogger routes nats-server log lines into zerolog.
type serverLogger struct {
	logger zerolog.Logger
}

func (l serverLogger) Noticef(format string, v ...any) { l.logger.Info().Msgf(format, v...) }
func (l serverLogger) Warnf(format string, v ...any)   { l.logger.Warn().Msgf(format, v...) }
func (l serverLogger) Errorf(format string, v ...any)  { l.logger.Error().Msgf(format, v...) }
func (l serverLogger) Debugf(format string, v ...any)  { l.logger.Debug().Msgf(format, v...) }
func (l serverLogger) Tracef(format string, v ...any)  { l.logger.Trace().Msgf(format, v...) }

// Fatalf is logged at error level rather than exiting the process.
func (l serverLogger) Fatalf(format string, v ...any) {
	l.logger.Error().Bool("fatal", true).Msgf(format, v...)
}
