// Package sloglistener bridges xbus events into log/slog.
package sloglistener

import (
	"context"
	"log/slog"
	"time"

	"github.com/trickstertwo/xbus"
)

// Name is the listener name used for registry lookups.
const Name = "slog"

// Listener forwards events to a *slog.Logger with "ts", "tag" and, when
// present, "error" attributes.
type Listener struct {
	xbus.Base
	l *slog.Logger
}

// New creates a listener; nil means slog.Default().
func New(l *slog.Logger) *Listener {
	if l == nil {
		l = slog.Default()
	}
	return &Listener{Base: xbus.NewBase(Name), l: l}
}

func (l *Listener) WriteLog(at time.Time, level xbus.Level, tag, msg string, err error) error {
	lvl := toSlog(level)
	ctx := context.Background()
	if !l.l.Enabled(ctx, lvl) {
		return nil
	}
	attrs := make([]slog.Attr, 0, 3)
	attrs = append(attrs, slog.Time("ts", at), slog.String("tag", tag))
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	l.l.LogAttrs(ctx, lvl, msg, attrs...)
	return nil
}

// toSlog maps TRACE onto DEBUG: xbus orders TRACE above DEBUG, which slog
// has no level for.
func toSlog(l xbus.Level) slog.Level {
	switch l {
	case xbus.LevelDebug, xbus.LevelTrace:
		return slog.LevelDebug
	case xbus.LevelInfo:
		return slog.LevelInfo
	case xbus.LevelWarn:
		return slog.LevelWarn
	case xbus.LevelError:
		return slog.LevelError
	default:
		return slog.LevelError + 4
	}
}
