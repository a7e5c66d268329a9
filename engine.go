package xbus

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/trickstertwo/xclock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Engine is the log distribution engine: callers publish events, and every
// registered listener receives the ones its filter accepts on its own
// goroutine. A slow or failing listener never blocks the publisher or the
// other listeners. Construct one per process (or per test) with New or
// NewBuilder and release it with Close.
type Engine struct {
	clock  xclock.Clock
	diag   *zap.Logger
	stats  stats
	bus    *broadcaster
	reg    *registry
	closed atomic.Bool
}

// New creates an Engine and registers cfg.Listeners.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		clock: cfg.Clock,
		diag:  cfg.Diagnostics,
	}
	e.bus = newBroadcaster(cfg, &e.stats, e.diag)
	e.reg = newRegistry(e.bus, cfg.StopTimeout)
	if len(cfg.Listeners) > 0 {
		if err := e.reg.add(cfg.Listeners...); err != nil {
			e.diag.Warn("listener registration", zap.Error(err))
		}
	}
	return e
}

// Enabled reports whether any enabled listener could accept level.
// Use it to skip building expensive messages.
func (e *Engine) Enabled(level Level) bool {
	return e.bus.enabled(level)
}

// Publish emits one event. It never blocks: below-threshold events return
// immediately, and a full buffer defers the event to a background drain.
func (e *Engine) Publish(level Level, tag, msg string, err error) {
	if !e.bus.enabled(level) {
		e.stats.rejected.Add(1)
		return
	}
	e.bus.send(NewEvent(e.clock.Now(), level, tag, msg, err))
}

// PublishFunc is the lazy form of Publish: fn runs at most once, and only
// when the level passes the global threshold and the tag is not ignored.
func (e *Engine) PublishFunc(level Level, tag string, fn func() string, err error) {
	if !e.bus.enabled(level) {
		e.stats.rejected.Add(1)
		return
	}
	if e.bus.isIgnored(tag) {
		e.stats.ignored.Add(1)
		return
	}
	e.bus.send(NewEvent(e.clock.Now(), level, tag, fn(), err))
}

// PublishEvent emits a prebuilt event, keeping its timestamp.
func (e *Engine) PublishEvent(ev *Event) {
	if ev == nil {
		return
	}
	e.bus.publish(ev)
}

// AddListeners registers listeners and starts their delivery goroutines.
func (e *Engine) AddListeners(ls ...Listener) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.reg.add(ls...)
}

// RemoveListener stops and unregisters l. No event reaches l after it
// returns. It reports whether l was registered.
//
// RemoveListener waits for l's current WriteLog call, so it must not be
// called from l's own WriteLog: that waits out StopTimeout, or forever when
// StopTimeout is negative. Use DetachListener there.
func (e *Engine) RemoveListener(l Listener) bool {
	return e.reg.remove(l)
}

// DetachListener unregisters l without waiting for a WriteLog call in
// progress. The call in progress may finish after it returns; none starts
// later. It is safe to call from l's own WriteLog.
func (e *Engine) DetachListener(l Listener) bool {
	return e.reg.detach(l)
}

// SetSoleListener replaces every registered listener with l.
func (e *Engine) SetSoleListener(l Listener) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.reg.replaceAll(l)
}

// ReplaceListeners atomically swaps the whole listener set.
func (e *Engine) ReplaceListeners(ls ...Listener) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.reg.replaceWith(ls)
	return nil
}

// ClearListeners stops and unregisters every listener.
func (e *Engine) ClearListeners() {
	e.reg.clear()
}

// Recalculate recomputes the global threshold. Call it after changing a
// listener's Filter enabled state or floor directly.
func (e *Engine) Recalculate() {
	e.reg.refresh()
}

// Threshold is the lowest level any enabled listener accepts, or
// LevelFatal when none is enabled.
func (e *Engine) Threshold() Level {
	return e.bus.level()
}

// Listeners returns registered listeners in registration order.
func (e *Engine) Listeners() []Listener {
	return e.reg.list()
}

// FindListener returns the first registered listener named name, or nil.
func (e *Engine) FindListener(name string) Listener {
	return e.reg.findByName(name)
}

// IgnoreTags drops future events carrying any of tags.
func (e *Engine) IgnoreTags(tags ...string) { e.bus.ignore(tags...) }

// UnignoreTags reverses IgnoreTags.
func (e *Engine) UnignoreTags(tags ...string) { e.bus.unignore(tags...) }

// IgnoredTags lists the ignored tags in no particular order.
func (e *Engine) IgnoredTags() []string { return e.bus.ignoredTags() }

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// Backlog is the number of events waiting for buffer space.
func (e *Engine) Backlog() int {
	return e.bus.ring.backlogLen()
}

// Diagnostics returns the logger used for engine-internal messages.
func (e *Engine) Diagnostics() *zap.Logger { return e.diag }

// Close rejects further publishing, lets every listener finish the events
// already published (bounded by StopTimeout), stops them and closes those
// implementing io.Closer. Safe to call more than once.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.bus.ring.seal()
	e.reg.drain()
	ls := e.reg.clear()
	e.bus.close()

	var err error
	for _, l := range ls {
		if c, ok := l.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

func newDiagnostics() *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		zapcore.WarnLevel,
	)
	return zap.New(core).Named("xbus")
}
