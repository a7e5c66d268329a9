package xbus

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// broadcaster is the single publish entry point. It owns the global
// threshold and the shared ring; per-listener filtering happens later, on
// each dispatch goroutine.
type broadcaster struct {
	threshold atomic.Int32
	ignored   atomic.Pointer[map[string]struct{}]
	ring      *ring
	stats     *stats
	diag      *zap.Logger
}

func newBroadcaster(cfg Config, st *stats, diag *zap.Logger) *broadcaster {
	b := &broadcaster{
		ring:  newRing(cfg.BufferSize, cfg.SpillAfter),
		stats: st,
		diag:  diag,
	}
	b.threshold.Store(int32(LevelFatal))
	b.ring.onSpill = func(s *subscriber, n int) {
		st.spilled.Add(uint64(n))
		diag.Warn("listener stalled, events moved to private queue",
			zap.String("listener", s.name),
			zap.Int("events", n),
		)
	}
	if len(cfg.IgnoreTags) > 0 {
		b.ignore(cfg.IgnoreTags...)
	}
	return b
}

// enabled is the coarse, registry-wide cut.
func (b *broadcaster) enabled(level Level) bool {
	return level >= Level(b.threshold.Load())
}

func (b *broadcaster) setThreshold(l Level) { b.threshold.Store(int32(l)) }
func (b *broadcaster) level() Level         { return Level(b.threshold.Load()) }

// publish checks the threshold before anything else, then hands the event
// to the ring. It never blocks the caller.
func (b *broadcaster) publish(e *Event) {
	if !b.enabled(e.level) {
		b.stats.rejected.Add(1)
		return
	}
	b.send(e)
}

// send assumes the threshold check already passed.
func (b *broadcaster) send(e *Event) {
	if b.isIgnored(e.tag) {
		b.stats.ignored.Add(1)
		return
	}
	direct, ok := b.ring.publish(e)
	if !ok {
		return
	}
	b.stats.published.Add(1)
	if !direct {
		b.stats.overflowed.Add(1)
		b.diag.Warn("log event delayed due to buffer overflow",
			zap.String("tag", e.tag),
			zap.Stringer("level", e.level),
		)
	}
}

func (b *broadcaster) isIgnored(tag string) bool {
	m := b.ignored.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[tag]
	return ok
}

// ignore and unignore copy-on-write the tag set; writers are rare.
func (b *broadcaster) ignore(tags ...string) {
	for {
		old := b.ignored.Load()
		next := make(map[string]struct{}, len(tags))
		if old != nil {
			for k := range *old {
				next[k] = struct{}{}
			}
		}
		for _, t := range tags {
			next[t] = struct{}{}
		}
		if b.ignored.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (b *broadcaster) unignore(tags ...string) {
	for {
		old := b.ignored.Load()
		if old == nil {
			return
		}
		next := make(map[string]struct{}, len(*old))
		for k := range *old {
			next[k] = struct{}{}
		}
		for _, t := range tags {
			delete(next, t)
		}
		if b.ignored.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (b *broadcaster) ignoredTags() []string {
	m := b.ignored.Load()
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(*m))
	for k := range *m {
		out = append(out, k)
	}
	return out
}

func (b *broadcaster) close() { b.ring.close() }
