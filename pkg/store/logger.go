package store

import (
	"strings"

	"github.com/rs/zerolog"
)

// badgerLogger routes BadgerDB's internal logging through zerolog. Badger's
// info output is chatty, so it is logged at debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(strings.TrimSuffix(format, "\n"), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msgf(strings.TrimSuffix(format, "\n"), args...)
}
