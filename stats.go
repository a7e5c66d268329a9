package xbus

import "sync/atomic"

type stats struct {
	published   atomic.Uint64
	rejected    atomic.Uint64
	ignored     atomic.Uint64
	overflowed  atomic.Uint64
	spilled     atomic.Uint64
	filterEvals atomic.Uint64
	filteredOut atomic.Uint64
	delivered   atomic.Uint64
	writeErrors atomic.Uint64
	panics      atomic.Uint64
	startErrors atomic.Uint64
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	// Published counts events accepted into the broadcast buffer or backlog.
	Published uint64
	// Rejected counts events below the global threshold.
	Rejected uint64
	// Ignored counts events dropped because their tag is ignored.
	Ignored uint64
	// Overflowed counts events that took the backlog path.
	Overflowed uint64
	// Spilled counts events moved to a stalled listener's private queue.
	Spilled uint64
	// FilterEvaluations counts per-listener filter checks.
	FilterEvaluations uint64
	// FilteredOut counts filter checks that rejected the event.
	FilteredOut uint64
	// Delivered counts successful WriteLog calls.
	Delivered uint64
	// WriteErrors counts WriteLog calls that returned an error or panicked.
	WriteErrors uint64
	// Panics counts recovered panics, a subset of WriteErrors plus start panics.
	Panics uint64
	// StartErrors counts failed OnStart hooks.
	StartErrors uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Published:         s.published.Load(),
		Rejected:          s.rejected.Load(),
		Ignored:           s.ignored.Load(),
		Overflowed:        s.overflowed.Load(),
		Spilled:           s.spilled.Load(),
		FilterEvaluations: s.filterEvals.Load(),
		FilteredOut:       s.filteredOut.Load(),
		Delivered:         s.delivered.Load(),
		WriteErrors:       s.writeErrors.Load(),
		Panics:            s.panics.Load(),
		StartErrors:       s.startErrors.Load(),
	}
}
