package whatsapp

import (
	"fmt"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// zlog routes whatsmeow's logging into zerolog.
type zlog struct {
	l zerolog.Logger
}

func newLogger(l zerolog.Logger, module string) waLog.Logger {
	return zlog{l: l.With().Str("module", module).Logger()}
}

func (z zlog) Errorf(msg string, args ...interface{}) { z.l.Error().Msg(fmt.Sprintf(msg, args...)) }
func (z zlog) Warnf(msg string, args ...interface{})  { z.l.Warn().Msg(fmt.Sprintf(msg, args...)) }
func (z zlog) Infof(msg string, args ...interface{})  { z.l.Info().Msg(fmt.Sprintf(msg, args...)) }
func (z zlog) Debugf(msg string, args ...interface{}) { z.l.Debug().Msg(fmt.Sprintf(msg, args...)) }

func (z zlog) Sub(module string) waLog.Logger {
	return zlog{l: z.l.With().Str("sub", module).Logger()}
}
