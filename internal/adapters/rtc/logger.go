package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory routes pion's internal logging into zerolog. Pion is chatty,
// so its debug output only shows up at trace level.
type LoggerFactory struct {
	Logger zerolog.Logger
}

func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{Logger: log.Logger}
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{l: f.Logger.With().Str("module", "pion").Str("scope", scope).Logger()}
}

type pionLogger struct {
	l zerolog.Logger
}

func (p *pionLogger) Trace(msg string) { p.l.Trace().Msg(msg) }
func (p *pionLogger) Tracef(format string, args ...interface{}) {
	p.l.Trace().Msg(fmt.Sprintf(format, args...))
}
func (p *pionLogger) Debug(msg string) { p.l.Trace().Msg(msg) }
func (p *pionLogger) Debugf(format string, args ...interface{}) {
	p.l.Trace().Msg(fmt.Sprintf(format, args...))
}
func (p *pionLogger) Info(msg string) { p.l.Debug().Msg(msg) }
func (p *pionLogger) Infof(format string, args ...interface{}) {
	p.l.Debug().Msg(fmt.Sprintf(format, args...))
}
func (p *pionLogger) Warn(msg string) { p.l.Warn().Msg(msg) }
func (p *pionLogger) Warnf(format string, args ...interface{}) {
	p.l.Warn().Msg(fmt.Sprintf(format, args...))
}
func (p *pionLogger) Error(msg string) { p.l.Error().Msg(msg) }
func (p *pionLogger) Errorf(format string, args ...interface{}) {
	p.l.Error().Msg(fmt.Sprintf(format, args...))
}
