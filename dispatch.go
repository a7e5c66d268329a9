package xbus

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// dispatcher is the delivery goroutine of one registered listener.
type dispatcher struct {
	id    string
	l     Listener
	sub   *subscriber
	done  chan struct{}
	stats *stats
	diag  *zap.Logger

	stopTimeout time.Duration
}

// startDispatcher subscribes synchronously, so every event published after
// it returns is observed, then starts the delivery goroutine.
func startDispatcher(l Listener, b *broadcaster, stopTimeout time.Duration) *dispatcher {
	id := uuid.NewString()
	d := &dispatcher{
		id:          id,
		l:           l,
		sub:         b.ring.subscribe(l.Name()),
		done:        make(chan struct{}),
		stats:       b.stats,
		diag:        b.diag.With(zap.String("listener", l.Name()), zap.String("listener_id", id)),
		stopTimeout: stopTimeout,
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)

	if s, ok := d.l.(Starter); ok {
		if err := d.start(s); err != nil {
			d.stats.startErrors.Add(1)
			d.diag.Warn("listener start failed", zap.Error(err))
		}
	}
	for {
		e, ok := d.sub.next()
		if !ok {
			return
		}
		d.deliver(e)
	}
}

func (d *dispatcher) start(s Starter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.panics.Add(1)
			err = errors.Errorf("panic in OnStart: %v", r)
		}
	}()
	return s.OnStart()
}

func (d *dispatcher) deliver(e *Event) {
	d.stats.filterEvals.Add(1)
	if !d.l.Filter().Accept(e) {
		d.stats.filteredOut.Add(1)
		return
	}
	if err := d.write(e); err != nil {
		d.stats.writeErrors.Add(1)
		d.diag.Warn("error writing log",
			zap.String("tag", e.tag),
			zap.Stringer("level", e.level),
			zap.Error(err),
		)
		return
	}
	d.stats.delivered.Add(1)
}

func (d *dispatcher) write(e *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.panics.Add(1)
			err = errors.Errorf("panic in WriteLog: %v", r)
		}
	}()
	if err := d.l.WriteLog(e.at, e.level, e.tag, e.msg, e.err); err != nil {
		return errors.Wrapf(err, "listener %s", d.l.Name())
	}
	return nil
}

// wait blocks until the delivery goroutine exits or the deadline passes.
func (d *dispatcher) wait(deadline time.Time) bool {
	if deadline.IsZero() {
		<-d.done
		return true
	}
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	select {
	case <-d.done:
		return true
	case <-t.C:
		return false
	}
}

// stop cancels the subscription and waits for an in-flight WriteLog. After
// it returns no further event reaches the listener, unless the wait timed out
// while WriteLog was still blocked; that call is left to finish on its own.
func (d *dispatcher) stop() {
	d.sub.cancel()
	var deadline time.Time
	if d.stopTimeout > 0 {
		deadline = time.Now().Add(d.stopTimeout)
	}
	if !d.wait(deadline) {
		d.diag.Warn("listener did not stop in time", zap.Duration("timeout", d.stopTimeout))
	}
}
