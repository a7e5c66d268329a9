package xbus

import (
	"sync"
	"time"
)

// ring is a bounded multi-consumer broadcast buffer. Every attached
// subscriber reads every event written after it attached; a slot is reusable
// once all attached subscribers have read it.
//
// Writes that find the ring full go to an ordered backlog which a single
// drain goroutine moves into the ring. While the backlog is non-empty new
// writes queue behind it, so ring order is always publish order.
//
// A subscriber holding the ring full while another one has read everything
// is detached: its unread events and every later write go to its private
// queue until it catches up, so a slow reader never paces the others.
type ring struct {
	mu   sync.Mutex
	cond *sync.Cond

	slots []*Event
	head  uint64 // sequence of the next write
	subs  map[*subscriber]struct{}

	backlog  []*Event
	draining bool
	sealed   bool // no new writes; readers finish what is queued
	closed   bool // hard stop

	// spillAfter bounds how long an overload may last while every attached
	// subscriber is behind before the laggards are detached anyway.
	// Zero or negative waits forever.
	spillAfter time.Duration
	onSpill    func(s *subscriber, n int) // called with mu held
}

func newRing(size int, spillAfter time.Duration) *ring {
	if size < 1 {
		size = 1
	}
	r := &ring{
		slots:      make([]*Event, size),
		subs:       make(map[*subscriber]struct{}),
		spillAfter: spillAfter,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// publish never blocks. direct is false when the event went to the backlog;
// ok is false when the ring no longer accepts writes.
func (r *ring) publish(e *Event) (direct, ok bool) {
	r.mu.Lock()
	if r.closed || r.sealed {
		r.mu.Unlock()
		return false, false
	}
	if len(r.backlog) == 0 && r.hasRoom() {
		r.put(e)
		r.mu.Unlock()
		return true, true
	}
	r.backlog = append(r.backlog, e)
	start := !r.draining
	r.draining = true
	r.mu.Unlock()

	if start {
		go r.drain()
	}
	return false, true
}

// backlogLen is used by tests and stats.
func (r *ring) backlogLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backlog)
}

func (r *ring) drain() {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The spill deadline covers the whole overload, not each wait.
	since := time.Now()
	for len(r.backlog) > 0 && !r.closed {
		if !r.hasRoom() && !r.waitRoom(since) {
			r.spill()
		}
		if r.closed {
			break
		}
		r.put(r.backlog[0])
		r.backlog[0] = nil
		r.backlog = r.backlog[1:]
	}
	if r.closed {
		r.backlog = nil
	}
	r.draining = false
}

// waitRoom blocks (releasing mu) until a slot frees or the ring closes, and
// reports true. It reports false when the laggards should be spilled: a
// caught-up subscriber is waiting on them, or the overload that started at
// since has outlasted spillAfter.
func (r *ring) waitRoom(since time.Time) bool {
	var deadline time.Time
	if r.spillAfter > 0 {
		deadline = since.Add(r.spillAfter)
		if d := time.Until(deadline); d > 0 {
			timer := time.AfterFunc(d, func() {
				r.mu.Lock()
				r.cond.Broadcast()
				r.mu.Unlock()
			})
			defer timer.Stop()
		}
	}
	for !r.hasRoom() && !r.closed {
		if r.starving() {
			return false
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false
		}
		r.cond.Wait()
	}
	return true
}

// starving reports whether an attached subscriber has read everything while
// the ring is full, i.e. it only waits on slower subscribers.
func (r *ring) starving() bool {
	for s := range r.subs {
		if !s.detached && s.pos == r.head {
			return true
		}
	}
	return false
}

// spill detaches every subscriber holding the ring full: its unread events
// move to its private queue and later writes are appended there until it
// catches up.
func (r *ring) spill() {
	size := uint64(len(r.slots))
	for s := range r.subs {
		if s.detached || r.head-s.pos < size {
			continue
		}
		n := int(r.head - s.pos)
		for seq := s.pos; seq < r.head; seq++ {
			s.private = append(s.private, r.slots[seq%size])
		}
		s.pos = r.head
		s.detached = true
		if r.onSpill != nil {
			r.onSpill(s, n)
		}
	}
}

// hasRoom ignores detached subscribers.
func (r *ring) hasRoom() bool {
	size := uint64(len(r.slots))
	for s := range r.subs {
		if !s.detached && r.head-s.pos >= size {
			return false
		}
	}
	return true
}

func (r *ring) put(e *Event) {
	r.slots[r.head%uint64(len(r.slots))] = e
	r.head++
	for s := range r.subs {
		if s.detached {
			s.private = append(s.private, e)
			s.pos = r.head
		}
	}
	r.cond.Broadcast()
}

// subscribe attaches a subscriber at the current head: it observes only
// events written after this call.
func (r *ring) subscribe(name string) *subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &subscriber{r: r, name: name, pos: r.head}
	if !r.closed {
		r.subs[s] = struct{}{}
	} else {
		s.cancelled = true
	}
	return s
}

// seal stops accepting writes; the backlog still drains and subscribers
// read to the end before next reports false.
func (r *ring) seal() {
	r.mu.Lock()
	r.sealed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *ring) close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

type subscriber struct {
	r         *ring
	name      string // for diagnostics
	pos       uint64
	private   []*Event
	detached  bool // reads only private until it catches up
	cancelled bool
}

// next blocks until an event is available. It returns false once the
// subscriber is cancelled, the ring is closed, or the ring is sealed and
// everything queued has been read.
func (s *subscriber) next() (*Event, bool) {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if s.cancelled {
			return nil, false
		}
		if len(s.private) > 0 {
			e := s.private[0]
			s.private[0] = nil
			s.private = s.private[1:]
			return e, true
		}
		if s.detached {
			// Caught up: pos was kept at head by put.
			s.detached = false
		}
		if s.pos < r.head {
			e := r.slots[s.pos%uint64(len(r.slots))]
			s.pos++
			if r.draining {
				r.cond.Broadcast()
			}
			return e, true
		}
		if r.closed || (r.sealed && len(r.backlog) == 0) {
			return nil, false
		}
		r.cond.Wait()
	}
}

// cancel detaches the subscriber. Unread events are discarded and the
// next call to next returns false.
func (s *subscriber) cancel() {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.private = nil
	delete(r.subs, s)
	r.cond.Broadcast()
}
