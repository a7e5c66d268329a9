// Package zerologlistener bridges xbus events into rs/zerolog.
package zerologlistener

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/trickstertwo/xbus"
)

// Name is the listener name used for registry lookups.
const Name = "zerolog"

// Listener forwards events to a zerolog.Logger.
//
//   - The event timestamp is written as an RFC3339Nano string under "ts".
//   - The tag is written as the "tag" field.
//   - FATAL is treated as error level to avoid os.Exit side-effects.
type Listener struct {
	xbus.Base
	l zerolog.Logger
}

func New(l zerolog.Logger) *Listener {
	return &Listener{Base: xbus.NewBase(Name), l: l}
}

// Config is an explicit, code-first configuration of the backing logger.
type Config struct {
	Writer            io.Writer // default: os.Stdout
	Console           bool      // pretty console output instead of JSON
	ConsoleTimeFormat string    // only used if Console==true; default time.RFC3339Nano
}

// NewFromConfig builds the zerolog logger itself.
func NewFromConfig(cfg Config) *Listener {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	if cfg.Console {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: cfg.ConsoleTimeFormat}
		if cw.TimeFormat == "" {
			cw.TimeFormat = time.RFC3339Nano
		}
		// Without a "time" field the console writer would print <nil>.
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
		w = cw
	}
	return New(zerolog.New(w).Level(zerolog.DebugLevel))
}

func (l *Listener) WriteLog(at time.Time, level xbus.Level, tag, msg string, err error) error {
	zlvl := mapLevel(level)
	if zlvl < l.l.GetLevel() {
		return nil
	}
	ev := l.l.WithLevel(zlvl)
	ev.Str("ts", at.UTC().Format(time.RFC3339Nano))
	ev.Str("tag", tag)
	if err != nil {
		ev.Err(err)
	}
	ev.Msg(msg)
	return nil
}

// mapLevel converts xbus.Level to zerolog.Level. TRACE ranks above DEBUG in
// xbus but below it in zerolog, so it is written as debug.
func mapLevel(l xbus.Level) zerolog.Level {
	switch l {
	case xbus.LevelDebug, xbus.LevelTrace:
		return zerolog.DebugLevel
	case xbus.LevelInfo:
		return zerolog.InfoLevel
	case xbus.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
