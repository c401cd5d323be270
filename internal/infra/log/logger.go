package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger создаёт настроенный zerolog.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "dev" {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "screen-automations").Logger().Level(level)
}

// CronLogger пробрасывает события robfig/cron в zerolog.
type CronLogger struct {
	log zerolog.Logger
}

// NewCronLogger создаёт адаптер.
func NewCronLogger(logger zerolog.Logger) CronLogger {
	return CronLogger{log: logger.With().Str("component", "cron").Logger()}
}

// Info реализует cron.Logger.
func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

// Error реализует cron.Logger.
func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
