package xbus

import (
	"time"

	"github.com/trickstertwo/xclock"
	"go.uber.org/zap"
)

const (
	// DefaultBufferSize is the shared broadcast capacity.
	DefaultBufferSize  = 512
	DefaultSpillAfter  = 2 * time.Second
	DefaultStopTimeout = 5 * time.Second
)

// Config for constructing an Engine (Factory data structure).
type Config struct {
	// BufferSize is the shared broadcast capacity. Defaults to DefaultBufferSize.
	BufferSize int
	// SpillAfter bounds an overflow during which no listener is caught up.
	// Past it the listeners holding the buffer full are moved to private
	// queues. A listener holding up a caught-up one is moved at once. Zero
	// means DefaultSpillAfter; negative waits forever.
	SpillAfter time.Duration
	// StopTimeout bounds how long removing a listener waits for an
	// in-flight WriteLog. Zero means DefaultStopTimeout; negative waits forever.
	StopTimeout time.Duration
	// Clock stamps events; defaults to xclock.Default().
	Clock xclock.Clock
	// Diagnostics receives overflow warnings and listener failures.
	// Defaults to a console logger on stderr at WARN.
	Diagnostics *zap.Logger
	// IgnoreTags are dropped at publish time.
	IgnoreTags []string
	// Listeners are registered by New in order.
	Listeners []Listener
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	switch {
	case c.SpillAfter == 0:
		c.SpillAfter = DefaultSpillAfter
	case c.SpillAfter < 0:
		c.SpillAfter = 0
	}
	switch {
	case c.StopTimeout == 0:
		c.StopTimeout = DefaultStopTimeout
	case c.StopTimeout < 0:
		c.StopTimeout = 0
	}
	if c.Clock == nil {
		c.Clock = xclock.Default()
	}
	if c.Diagnostics == nil {
		c.Diagnostics = newDiagnostics()
	}
	return c
}

// Builder separates construction from representation (Builder pattern).
type Builder struct {
	cfg Config
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) WithBufferSize(n int) *Builder {
	b.cfg.BufferSize = n
	return b
}

func (b *Builder) WithSpillAfter(d time.Duration) *Builder {
	b.cfg.SpillAfter = d
	return b
}

func (b *Builder) WithStopTimeout(d time.Duration) *Builder {
	b.cfg.StopTimeout = d
	return b
}

func (b *Builder) WithClock(c xclock.Clock) *Builder {
	b.cfg.Clock = c
	return b
}

func (b *Builder) WithDiagnostics(l *zap.Logger) *Builder {
	b.cfg.Diagnostics = l
	return b
}

func (b *Builder) IgnoreTags(tags ...string) *Builder {
	b.cfg.IgnoreTags = append(b.cfg.IgnoreTags, tags...)
	return b
}

func (b *Builder) AddListener(l ...Listener) *Builder {
	b.cfg.Listeners = append(b.cfg.Listeners, l...)
	return b
}

// Build constructs the Engine (Factory + Builder). It fails only when a
// configured listener is nil or has no Filter.
func (b *Builder) Build() (*Engine, error) {
	for _, l := range b.cfg.Listeners {
		if l == nil || l.Filter() == nil {
			return nil, ErrNilListener
		}
	}
	return New(b.cfg), nil
}
