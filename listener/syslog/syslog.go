//go:build !windows && !plan9

// Package syslog provides a listener forwarding events to the local syslog
// daemon, the Linux counterpart of a platform log service.
package syslog

import (
	"log/syslog"
	"sync"
	"time"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/internal/render"
)

// Name is the listener name used for registry lookups.
const Name = "syslog"

// Writer is the subset of *syslog.Writer the listener uses.
type Writer interface {
	Crit(m string) error
	Err(m string) error
	Warning(m string) error
	Info(m string) error
	Debug(m string) error
	Close() error
}

// Options select the syslog connection. Empty Network dials the local daemon.
type Options struct {
	Network  string
	Addr     string
	Facility syslog.Priority // default LOG_USER
	Ident    string          // default: process name
}

// Listener writes "[tag] message" bodies at the mapped syslog severity.
type Listener struct {
	xbus.Base

	mu   sync.Mutex
	opts Options
	w    Writer
}

// New creates a listener; the connection opens lazily on first write.
func New(opts Options) *Listener {
	if opts.Facility == 0 {
		opts.Facility = syslog.LOG_USER
	}
	return &Listener{Base: xbus.NewBase(Name), opts: opts}
}

// NewWithWriter uses w instead of dialing syslog.
func NewWithWriter(w Writer) *Listener {
	return &Listener{Base: xbus.NewBase(Name), opts: Options{Facility: syslog.LOG_USER}, w: w}
}

func (l *Listener) WriteLog(_ time.Time, level xbus.Level, tag, msg string, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		w, derr := syslog.Dial(l.opts.Network, l.opts.Addr, l.opts.Facility|syslog.LOG_INFO, l.opts.Ident)
		if derr != nil {
			return derr
		}
		l.w = w
	}
	body := render.Message("["+tag+"]", msg, err)
	switch level {
	case xbus.LevelFatal:
		return l.w.Crit(body)
	case xbus.LevelError:
		return l.w.Err(body)
	case xbus.LevelWarn:
		return l.w.Warning(body)
	case xbus.LevelInfo:
		return l.w.Info(body)
	default:
		return l.w.Debug(body)
	}
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	err := l.w.Close()
	l.w = nil
	return err
}
