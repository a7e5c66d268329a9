// Package console provides a listener that prints events to the terminal
// with an emoji marker per level. ERROR and FATAL go to stderr.
package console

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/internal/render"
)

// Name is the listener name used for registry lookups.
const Name = "console"

var defaultEmoji = map[xbus.Level]string{
	xbus.LevelFatal: "☠️",
	xbus.LevelError: "❤️",
	xbus.LevelWarn:  "\U0001F9E1",
	xbus.LevelInfo:  "\U0001F499",
	xbus.LevelDebug: "\U0001F90D",
	xbus.LevelTrace: "\U0001F49C",
}

// Listener writes "HH:MM:SS.mmm <emoji> tag message" lines.
type Listener struct {
	xbus.Base

	mu     sync.Mutex // guards writes and emoji
	out    io.Writer
	errOut io.Writer
	emoji  map[xbus.Level]string
}

// New creates a console listener on os.Stdout and os.Stderr.
func New() *Listener {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters routes ERROR and FATAL to errOut and everything else to out.
// Nil writers default to os.Stdout and os.Stderr.
func NewWithWriters(out, errOut io.Writer) *Listener {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	emoji := make(map[xbus.Level]string, len(defaultEmoji))
	for k, v := range defaultEmoji {
		emoji[k] = v
	}
	return &Listener{
		Base:   xbus.NewBase(Name),
		out:    out,
		errOut: errOut,
		emoji:  emoji,
	}
}

// SetEmoji overrides the marker printed for level.
func (l *Listener) SetEmoji(level xbus.Level, marker string) {
	l.mu.Lock()
	l.emoji[level] = marker
	l.mu.Unlock()
}

// Emoji returns the marker printed for level.
func (l *Listener) Emoji(level xbus.Level) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.emoji[level]
}

func (l *Listener) WriteLog(at time.Time, level xbus.Level, tag, msg string, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := make([]byte, 0, 64+len(tag)+len(msg))
	b = render.AppendTime(b, at)
	b = append(b, ' ')
	b = append(b, l.emoji[level]...)
	b = append(b, ' ')
	b = render.AppendMessage(b, tag, msg, err)

	w := l.out
	if level == xbus.LevelError || level == xbus.LevelFatal {
		w = l.errOut
	}
	_, werr := w.Write(b)
	return werr
}

// Register this listener as the default for xbus.Default().
func init() {
	xbus.RegisterDefaultListenerFactory(func() xbus.Listener { return New() })
}
