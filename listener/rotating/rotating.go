// Package rotating provides a size-rotated file listener backed by lumberjack.
package rotating

import (
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/internal/render"
)

// Name is the listener name used for registry lookups.
const Name = "rotating"

const timeLayout = "2006-01-02 15:04:05.000"

// Options mirror lumberjack.Logger.
type Options struct {
	Filename   string // default: <processname>-lumberjack.log in os.TempDir()
	MaxSizeMB  int    // megabytes before rotation; default 100
	MaxBackups int    // old files to keep; 0 keeps all
	MaxAgeDays int    // days to keep old files; 0 keeps all
	Compress   bool   // gzip rotated files
	LocalTime  bool   // local time in backup names
}

// Listener writes "YYYY-MM-DD HH:MM:SS.mmm [LEVEL] tag message" lines.
type Listener struct {
	xbus.Base

	mu sync.Mutex
	lj *lumberjack.Logger
}

// New creates a rotating file listener.
func New(opts Options) *Listener {
	return &Listener{
		Base: xbus.NewBase(Name),
		lj: &lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  opts.LocalTime,
		},
	}
}

// Filename is the active log file.
func (l *Listener) Filename() string { return l.lj.Filename }

func (l *Listener) WriteLog(at time.Time, level xbus.Level, tag, msg string, err error) error {
	b := make([]byte, 0, 64+len(tag)+len(msg))
	b = at.AppendFormat(b, timeLayout)
	b = append(b, " ["...)
	b = append(b, level.String()...)
	b = append(b, "] "...)
	b = render.AppendMessage(b, tag, msg, err)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, werr := l.lj.Write(b)
	return werr
}

// Rotate forces a rotation regardless of size.
func (l *Listener) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lj.Rotate()
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lj.Close()
}
