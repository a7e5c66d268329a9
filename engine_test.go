package xbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xclock"
	"go.uber.org/zap"
)

func TestFailingListenerIsIsolated(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	bad := NewListenerFunc("bad", func(time.Time, Level, string, string, error) error {
		return errors.New("disk full")
	})
	bad.Filter().SetMinLevel(LevelDebug)
	good := newRecorder("good", LevelDebug)
	require.NoError(t, e.AddListeners(bad, good))

	levels := Levels[:5]
	for i, l := range levels {
		e.Publish(l, "app", fmt.Sprintf("m%d", i), nil)
	}

	good.waitFor(t, len(levels))
	require.Eventually(t, func() bool { return e.Stats().WriteErrors == uint64(len(levels)) }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4"}, good.messages())
	var got []Level
	for _, ev := range good.snapshot() {
		got = append(got, ev.Level())
	}
	assert.Equal(t, levels, got)
}

func TestThresholdIsLowestEnabledFloor(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	assert.Equal(t, LevelFatal, e.Threshold(), "no listeners")

	warn := newRecorder("warn", LevelWarn)
	debug := newRecorder("debug", LevelDebug)
	errL := newRecorder("error", LevelError)
	require.NoError(t, e.AddListeners(warn, debug, errL))
	assert.Equal(t, LevelDebug, e.Threshold())

	debug.Filter().SetEnabled(false)
	assert.Equal(t, LevelDebug, e.Threshold(), "filter changes need Recalculate")
	e.Recalculate()
	assert.Equal(t, LevelWarn, e.Threshold())

	warn.Filter().SetEnabled(false)
	errL.Filter().SetEnabled(false)
	e.Recalculate()
	assert.Equal(t, LevelFatal, e.Threshold(), "no enabled listeners")

	e.ClearListeners()
	assert.Equal(t, LevelFatal, e.Threshold())
	assert.Empty(t, e.Listeners())
}

func TestOverflowDeliversEverythingInOrder(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{BufferSize: 2})
	slow := newRecorder("slow", LevelDebug)
	slow.delay = 10 * time.Millisecond
	require.NoError(t, e.AddListeners(slow))

	want := make([]string, 10)
	for i := range want {
		want[i] = fmt.Sprintf("e%d", i)
		e.Publish(LevelInfo, "burst", want[i], nil)
	}
	assert.NotZero(t, e.Stats().Overflowed, "a burst of 10 into 2 slots must overflow")

	slow.waitFor(t, 10)
	assert.Equal(t, want, slow.messages())
	assert.Equal(t, uint64(10), e.Stats().Published)
	require.Eventually(t, func() bool { return e.Backlog() == 0 }, time.Second, time.Millisecond)
}

func TestBelowThresholdNeverReachesFilters(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	r := newRecorder("warn", LevelWarn)
	require.NoError(t, e.AddListeners(r))

	for i := 0; i < 3; i++ {
		e.Publish(LevelDebug, "t", "quiet", nil)
	}
	e.Publish(LevelWarn, "t", "loud", nil)
	r.waitFor(t, 1)

	s := e.Stats()
	assert.Equal(t, uint64(3), s.Rejected)
	assert.Equal(t, uint64(1), s.Published)
	assert.Equal(t, uint64(1), s.FilterEvaluations)
	assert.Equal(t, []string{"loud"}, r.messages())
}

func TestLazyProducerSkippedBelowThreshold(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	r := newRecorder("warn", LevelWarn)
	require.NoError(t, e.AddListeners(r))

	var calls atomic.Int32
	fn := func() string {
		calls.Add(1)
		return "built"
	}
	log := e.Logger("lazy")
	log.DebugFn(fn)
	log.InfoFn(fn)
	assert.Equal(t, int32(0), calls.Load())

	log.WarnFn(fn)
	assert.Equal(t, int32(1), calls.Load())
	r.waitFor(t, 1)
	assert.Equal(t, "built", r.snapshot()[0].Message())
}

func TestNoDeliveryAfterRemove(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	keep := newRecorder("keep", LevelInfo)
	gone := newRecorder("gone", LevelInfo)
	require.NoError(t, e.AddListeners(keep, gone))

	e.Publish(LevelInfo, "t", "before", nil)
	gone.waitFor(t, 1)

	assert.True(t, e.RemoveListener(gone))
	assert.False(t, e.RemoveListener(gone))
	n := gone.count()

	for i := 0; i < 20; i++ {
		e.Publish(LevelInfo, "t", "after", nil)
	}
	keep.waitFor(t, 21)
	assert.Equal(t, n, gone.count())
	assert.Nil(t, e.FindListener("gone"))
}

func TestResubscribeSeesNoStaleEvents(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	anchor := newRecorder("anchor", LevelInfo)
	r := newRecorder("r", LevelInfo)
	require.NoError(t, e.AddListeners(anchor, r))

	e.Publish(LevelInfo, "t", "one", nil)
	r.waitFor(t, 1)
	require.True(t, e.RemoveListener(r))

	e.Publish(LevelInfo, "t", "missed", nil)
	anchor.waitFor(t, 2)

	require.NoError(t, e.AddListeners(r))
	e.Publish(LevelInfo, "t", "two", nil)
	r.waitFor(t, 2)
	anchor.waitFor(t, 3)
	assert.Equal(t, []string{"one", "two"}, r.messages())
}

func TestPerListenerFIFO(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{BufferSize: 8})
	a := newRecorder("a", LevelDebug)
	b := newRecorder("b", LevelDebug)
	b.delay = 100 * time.Microsecond
	require.NoError(t, e.AddListeners(a, b))

	want := make([]string, 200)
	for i := range want {
		want[i] = fmt.Sprint(i)
		e.Publish(LevelInfo, "seq", want[i], nil)
	}
	a.waitFor(t, 200)
	b.waitFor(t, 200)
	assert.Equal(t, want, a.messages())
	assert.Equal(t, want, b.messages())
}

func TestDisabledListenerDiscardsQueuedEvents(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	on := newRecorder("on", LevelInfo)
	off := newRecorder("off", LevelInfo)
	require.NoError(t, e.AddListeners(on, off))

	off.Filter().SetEnabled(false)
	e.Recalculate()
	e.Publish(LevelInfo, "t", "m", nil)
	on.waitFor(t, 1)

	require.Eventually(t, func() bool { return e.Stats().FilteredOut == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, off.count())
}

func TestIgnoredTags(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{IgnoreTags: []string{"noisy"}})
	r := newRecorder("r", LevelDebug)
	require.NoError(t, e.AddListeners(r))

	e.Publish(LevelError, "noisy", "dropped", nil)
	e.Publish(LevelError, "quiet", "kept", nil)
	r.waitFor(t, 1)
	assert.Equal(t, uint64(1), e.Stats().Ignored)
	assert.Equal(t, []string{"noisy"}, e.IgnoredTags())

	e.UnignoreTags("noisy")
	e.IgnoreTags("chatty")
	e.Publish(LevelError, "noisy", "back", nil)
	r.waitFor(t, 2)
	assert.Equal(t, []string{"kept", "back"}, r.messages())
	assert.Equal(t, []string{"chatty"}, e.IgnoredTags())
}

func TestPublishFuncSkipsIgnoredTag(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{IgnoreTags: []string{"noisy"}})
	r := newRecorder("r", LevelDebug)
	require.NoError(t, e.AddListeners(r))

	var calls atomic.Int32
	fn := func() string { calls.Add(1); return "built" }
	e.PublishFunc(LevelError, "noisy", fn, nil)
	assert.Zero(t, calls.Load(), "message built for an ignored tag")
	assert.Equal(t, uint64(1), e.Stats().Ignored)

	e.PublishFunc(LevelError, "quiet", fn, nil)
	r.waitFor(t, 1)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"built"}, r.messages())
}

func TestListenerCanDetachItself(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{StopTimeout: -1})
	other := newRecorder("other", LevelInfo)
	var (
		self  *ListenerFunc
		seen  atomic.Int32
		found atomic.Bool
	)
	self = NewListenerFunc("self", func(time.Time, Level, string, string, error) error {
		seen.Add(1)
		found.Store(e.DetachListener(self))
		return nil
	})
	require.NoError(t, e.AddListeners(self, other))

	e.Publish(LevelInfo, "t", "first", nil)
	require.Eventually(t, func() bool { return seen.Load() == 1 }, 5*time.Second, time.Millisecond)
	assert.True(t, found.Load())
	assert.Equal(t, []Listener{other}, e.Listeners())

	e.Publish(LevelInfo, "t", "second", nil)
	other.waitFor(t, 2)
	assert.Equal(t, int32(1), seen.Load())

	done := make(chan error, 1)
	go func() { done <- e.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close hung after a listener detached itself")
	}
}

// blocker parks in WriteLog until release is closed.
type blocker struct {
	Base
	release chan struct{}
	rec     *recorder
}

func (b *blocker) WriteLog(at time.Time, level Level, tag, msg string, err error) error {
	<-b.release
	return b.rec.WriteLog(at, level, tag, msg, err)
}

func TestStalledListenerOnlyStarvesItself(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{BufferSize: 2, SpillAfter: 20 * time.Millisecond})
	stuck := &blocker{Base: NewBase("stuck"), release: make(chan struct{}), rec: newRecorder("stuck", LevelDebug)}
	fast := newRecorder("fast", LevelInfo)
	require.NoError(t, e.AddListeners(stuck, fast))

	want := make([]string, 12)
	for i := range want {
		want[i] = fmt.Sprintf("e%d", i)
		e.Publish(LevelInfo, "t", want[i], nil)
	}

	fast.waitFor(t, 12)
	assert.Equal(t, want, fast.messages())
	assert.Zero(t, stuck.rec.count())
	assert.NotZero(t, e.Stats().Spilled)

	close(stuck.release)
	stuck.rec.waitFor(t, 12)
	assert.Equal(t, want, stuck.rec.messages())
}

func TestStalledListenerDoesNotPaceOthers(t *testing.T) {
	t.Parallel()

	const spillAfter = 2 * time.Second
	e := newTestEngine(t, Config{BufferSize: 4, SpillAfter: spillAfter})
	stuck := &blocker{Base: NewBase("stuck"), release: make(chan struct{}), rec: newRecorder("stuck", LevelDebug)}
	fast := newRecorder("fast", LevelInfo)
	require.NoError(t, e.AddListeners(stuck, fast))

	want := make([]string, 40)
	start := time.Now()
	for i := range want {
		want[i] = fmt.Sprintf("e%d", i)
		e.Publish(LevelInfo, "t", want[i], nil)
	}
	fast.waitFor(t, 40)
	assert.Less(t, time.Since(start), spillAfter/4, "fast listener waited on the stalled one")
	assert.Equal(t, want, fast.messages())

	close(stuck.release)
	stuck.rec.waitFor(t, 40)
	assert.Equal(t, want, stuck.rec.messages())
}

func TestSlowListenerDoesNotPaceOthers(t *testing.T) {
	t.Parallel()

	const spillAfter = 2 * time.Second
	e := newTestEngine(t, Config{BufferSize: 4, SpillAfter: spillAfter})
	slow := newRecorder("slow", LevelInfo)
	slow.delay = 5 * time.Millisecond
	fast := newRecorder("fast", LevelInfo)
	require.NoError(t, e.AddListeners(slow, fast))

	want := make([]string, 100)
	start := time.Now()
	for i := range want {
		want[i] = fmt.Sprintf("e%d", i)
		e.Publish(LevelInfo, "t", want[i], nil)
	}
	fast.waitFor(t, 100)
	assert.Less(t, time.Since(start), spillAfter/4)
	assert.Less(t, slow.count(), 100, "fast finished only after the slow listener")
	assert.Equal(t, want, fast.messages())

	slow.waitFor(t, 100)
	assert.Equal(t, want, slow.messages())
	assert.NotZero(t, e.Stats().Spilled)
}

type panicky struct {
	Base
	calls atomic.Int32
}

func (p *panicky) WriteLog(time.Time, Level, string, string, error) error {
	p.calls.Add(1)
	panic("boom")
}

func TestPanickingListenerIsRecovered(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	p := &panicky{Base: NewBase("panicky")}
	r := newRecorder("r", LevelInfo)
	require.NoError(t, e.AddListeners(p, r))

	e.Publish(LevelInfo, "t", "a", nil)
	e.Publish(LevelInfo, "t", "b", nil)
	r.waitFor(t, 2)
	require.Eventually(t, func() bool { return p.calls.Load() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return e.Stats().Panics == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(2), e.Stats().WriteErrors)
}

type starter struct {
	*recorder
	err     error
	started chan struct{}
}

func (s *starter) OnStart() error {
	close(s.started)
	return s.err
}

func TestOnStartRunsFirstAndFailureIsReported(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	s := &starter{recorder: newRecorder("s", LevelInfo), err: errors.New("no dir"), started: make(chan struct{})}
	require.NoError(t, e.AddListeners(s))
	e.Publish(LevelInfo, "t", "after start", nil)

	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		t.Fatal("OnStart not called")
	}
	s.waitFor(t, 1)
	assert.Equal(t, uint64(1), e.Stats().StartErrors)
}

type closingRecorder struct {
	*recorder
	closed atomic.Bool
	err    error
}

func (c *closingRecorder) Close() error {
	c.closed.Store(true)
	return c.err
}

func TestCloseDrainsAndClosesListeners(t *testing.T) {
	t.Parallel()

	e := New(Config{Diagnostics: zap.NewNop()})
	slow := &closingRecorder{recorder: newRecorder("slow", LevelInfo), err: errors.New("flush failed")}
	slow.delay = time.Millisecond
	plain := newRecorder("plain", LevelInfo)
	require.NoError(t, e.AddListeners(slow, plain))

	for i := 0; i < 20; i++ {
		e.Publish(LevelInfo, "t", "m", nil)
	}
	err := e.Close()
	require.EqualError(t, err, "flush failed")
	assert.True(t, slow.closed.Load())
	assert.Equal(t, 20, slow.count())
	assert.Equal(t, 20, plain.count())

	assert.NoError(t, e.Close(), "second Close is a no-op")
	e.Publish(LevelFatal, "t", "late", nil)
	assert.ErrorIs(t, e.AddListeners(newRecorder("x", LevelInfo)), ErrClosed)
	assert.ErrorIs(t, e.SetSoleListener(newRecorder("x", LevelInfo)), ErrClosed)
	assert.ErrorIs(t, e.ReplaceListeners(), ErrClosed)
}

func TestListenerSetManagement(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	a := newRecorder("a", LevelInfo)
	b := newRecorder("b", LevelWarn)
	require.NoError(t, e.AddListeners(a, b, a))
	assert.Equal(t, []Listener{a, b}, e.Listeners(), "duplicates are skipped")
	assert.Same(t, b, e.FindListener("b"))

	assert.ErrorIs(t, e.AddListeners(nil), ErrNilListener)
	assert.ErrorIs(t, e.AddListeners(&recorder{}), ErrNilListener)

	c := newRecorder("c", LevelError)
	require.NoError(t, e.SetSoleListener(c))
	assert.Equal(t, []Listener{c}, e.Listeners())
	assert.Equal(t, LevelError, e.Threshold())

	require.NoError(t, e.ReplaceListeners(a, b))
	assert.Equal(t, []Listener{a, b}, e.Listeners())
	assert.Equal(t, LevelInfo, e.Threshold())
}

func TestEventsCarryClockTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	e := newTestEngine(t, Config{Clock: xclock.NewFrozen(at)})
	r := newRecorder("r", LevelDebug)
	require.NoError(t, e.AddListeners(r))

	e.Logger("clock").ErrorErr(errors.New("cause"), "failed")
	r.waitFor(t, 1)
	got := r.snapshot()[0]
	assert.True(t, got.At().Equal(at))
	assert.Equal(t, LevelError, got.Level())
	assert.Equal(t, "clock", got.Tag())
	assert.EqualError(t, got.Err(), "cause")
}

func TestPublishEventKeepsTimestamp(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	r := newRecorder("r", LevelInfo)
	require.NoError(t, e.AddListeners(r))

	at := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	e.PublishEvent(nil)
	e.PublishEvent(NewEvent(at, LevelDebug, "t", "below", nil))
	e.PublishEvent(NewEvent(at, LevelWarn, "t", "kept", nil))
	r.waitFor(t, 1)
	assert.True(t, r.snapshot()[0].At().Equal(at))
	assert.Equal(t, uint64(1), e.Stats().Rejected)
}

func TestConcurrentPublishers(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{BufferSize: 16})
	r := newRecorder("r", LevelDebug)
	require.NoError(t, e.AddListeners(r))

	const workers, each = 8, 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			log := e.Logger(fmt.Sprint("w", w))
			for i := 0; i < each; i++ {
				log.Info(fmt.Sprint(i))
			}
		}(w)
	}
	wg.Wait()
	r.waitFor(t, workers*each)

	// Per publisher, order is preserved.
	next := map[string]int{}
	for _, got := range r.snapshot() {
		require.Equal(t, fmt.Sprint(next[got.Tag()]), got.Message(), got.Tag())
		next[got.Tag()]++
	}
}
