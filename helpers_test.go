package xbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder is a stub listener that records every WriteLog call.
type recorder struct {
	Base

	mu     sync.Mutex
	events []*Event
	delay  time.Duration
}

func newRecorder(name string, min Level) *recorder {
	r := &recorder{Base: NewBase(name)}
	r.Filter().SetMinLevel(min)
	return r
}

func (r *recorder) WriteLog(at time.Time, level Level, tag, msg string, err error) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.events = append(r.events, NewEvent(at, level, tag, msg, err))
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.msg
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count() >= n }, 5*time.Second, time.Millisecond,
		"%s: expected %d events", r.Name(), n)
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = zap.NewNop()
	}
	e := New(cfg)
	t.Cleanup(func() { _ = e.Close() })
	return e
}
