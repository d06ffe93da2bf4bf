package logsvc

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// ZeroLogger is a core.Logger writing structured logs with zerolog.
type ZeroLogger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*ZeroLogger)(nil)

// NewZeroLogger logs human-friendly lines in debug mode and JSON lines otherwise.
func NewZeroLogger(w io.Writer, conf *core.Config) *ZeroLogger {
	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("app", conf.AppName).
		Str("env", conf.Env).
		Logger()
	return &ZeroLogger{zl: zl}
}

// Component returns a copy of the logger tagging every line with the component name, e.g. "db".
func (l ZeroLogger) Component(name string) *ZeroLogger {
	return &ZeroLogger{zl: l.zl.With().Str("component", name).Logger()}
}

// NewNopLogger discards everything.
func NewNopLogger() *ZeroLogger {
	return &ZeroLogger{zl: zerolog.Nop()}
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l ZeroLogger) log(evt *zerolog.Event, msg string, args []interface{}) {
	for i, arg := range args {
		switch a := arg.(type) {
		case error:
			evt = evt.Err(a)
		case map[string]interface{}:
			evt = evt.Fields(a)
		case user.User:
			evt = evt.Str("user_id", a.ID).Str("username", a.Username)
		default:
			evt = evt.Interface(fmt.Sprintf("arg%d", i), a)
		}
	}
	evt.Msg(msg)
}

func (l ZeroLogger) Debug(msg string, args ...interface{}) { l.log(l.zl.Debug(), msg, args) }
func (l ZeroLogger) Info(msg string, args ...interface{})  { l.log(l.zl.Info(), msg, args) }
func (l ZeroLogger) Warn(msg string, args ...interface{})  { l.log(l.zl.Warn(), msg, args) }
func (l ZeroLogger) Error(msg string, args ...interface{}) { l.log(l.zl.Error(), msg, args) }

// Fatal logs then exits the program.
func (l ZeroLogger) Fatal(msg string, args ...interface{}) { l.log(l.zl.Fatal(), msg, args) }
