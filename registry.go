package xbus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// registry owns registered listeners and the derived global threshold. All
// mutations serialize on mu; publishing never takes it.
type registry struct {
	mu      sync.Mutex
	entries []*dispatcher
	bus     *broadcaster

	stopTimeout time.Duration
}

func newRegistry(b *broadcaster, stopTimeout time.Duration) *registry {
	return &registry{bus: b, stopTimeout: stopTimeout}
}

// add registers listeners in order and starts a dispatcher for each. Nil
// listeners, listeners without a filter and already registered instances
// are skipped; the first two are reported as ErrNilListener.
func (r *registry) add(ls ...Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for _, l := range ls {
		if l == nil || l.Filter() == nil {
			err = ErrNilListener
			r.bus.diag.Warn("skipping listener without filter")
			continue
		}
		if r.indexOf(l) >= 0 {
			continue
		}
		r.entries = append(r.entries, startDispatcher(l, r.bus, r.stopTimeout))
	}
	r.recalculate()
	return err
}

func (r *registry) remove(l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(l)
	if i < 0 {
		return false
	}
	r.entries[i].stop()
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.recalculate()
	return true
}

// detach is remove without waiting for an in-flight write.
func (r *registry) detach(l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(l)
	if i < 0 {
		return false
	}
	r.entries[i].sub.cancel()
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.recalculate()
	return true
}

// replaceAll stops every listener and installs l as the only one.
func (r *registry) replaceAll(l Listener) error {
	if l == nil || l.Filter() == nil {
		return ErrNilListener
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopAll()
	r.entries = append(r.entries, startDispatcher(l, r.bus, r.stopTimeout))
	r.recalculate()
	return nil
}

// replaceWith is replaceAll for a whole set; used by configuration reloads.
func (r *registry) replaceWith(ls []Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopAll()
	for _, l := range ls {
		if l == nil || l.Filter() == nil || r.indexOf(l) >= 0 {
			continue
		}
		r.entries = append(r.entries, startDispatcher(l, r.bus, r.stopTimeout))
	}
	r.recalculate()
}

// clear stops and drops every listener. It returns what was registered.
func (r *registry) clear() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.listLocked()
	r.stopAll()
	r.bus.setThreshold(LevelFatal)
	return out
}

// drain waits, bounded by stopTimeout overall, for every dispatcher to
// finish reading a sealed ring.
func (r *registry) drain() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deadline time.Time
	if r.stopTimeout > 0 {
		deadline = time.Now().Add(r.stopTimeout)
	}
	for _, d := range r.entries {
		if !d.wait(deadline) {
			r.bus.diag.Warn("listener did not drain before close", zap.String("listener", d.l.Name()))
		}
	}
}

func (r *registry) findByName(name string) Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.entries {
		if d.l.Name() == name {
			return d.l
		}
	}
	return nil
}

func (r *registry) list() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

// refresh recomputes the threshold after direct Filter mutations.
func (r *registry) refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recalculate()
}

// recalculate sets the threshold to the lowest floor among enabled
// listeners, or LevelFatal when none is enabled. Caller holds mu.
func (r *registry) recalculate() {
	lowest := LevelFatal
	for _, d := range r.entries {
		f := d.l.Filter()
		if !f.Enabled() {
			continue
		}
		if lvl := f.MinLevel(); lvl < lowest {
			lowest = lvl
		}
	}
	old := r.bus.level()
	r.bus.setThreshold(lowest)
	if old != lowest {
		r.bus.diag.Debug("threshold changed", zap.Stringer("from", old), zap.Stringer("to", lowest))
	}
}

func (r *registry) stopAll() {
	for _, d := range r.entries {
		d.stop()
	}
	r.entries = nil
}

func (r *registry) listLocked() []Listener {
	out := make([]Listener, len(r.entries))
	for i, d := range r.entries {
		out[i] = d.l
	}
	return out
}

func (r *registry) indexOf(l Listener) int {
	for i, d := range r.entries {
		if d.l == l {
			return i
		}
	}
	return -1
}
