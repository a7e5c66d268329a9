package xbus

import (
	"time"
)

// Listener consumes log events (Strategy). WriteLog runs on the listener's
// own dispatch goroutine and may block; a returned error or panic is reported
// through the engine diagnostics and never reaches the publisher.
type Listener interface {
	Name() string
	Filter() *Filter
	WriteLog(at time.Time, level Level, tag, msg string, err error) error
}

// Starter is an optional interface; OnStart runs once on the dispatch
// goroutine before the first event is delivered.
type Starter interface {
	OnStart() error
}

// Base carries the name and filter every listener needs. Embed it to satisfy
// the Name and Filter parts of Listener; build it with NewBase.
type Base struct {
	name   string
	filter *Filter
}

// NewBase returns a Base with the default floor of LevelInfo.
func NewBase(name string) Base {
	return Base{name: name, filter: NewFilter(LevelInfo)}
}

func (b *Base) Name() string { return b.name }

// SetName renames the listener. Call it before registering the listener.
func (b *Base) SetName(name string) { b.name = name }

// Filter returns the listener filter. It is nil for a zero Base.
func (b *Base) Filter() *Filter { return b.filter }

func (b *Base) String() string {
	if b.filter == nil {
		return b.name + "()"
	}
	return b.name + "(" + b.filter.String() + ")"
}

// ListenerFunc wraps a function as a Listener, mostly for tests and glue code.
type ListenerFunc struct {
	Base
	fn func(at time.Time, level Level, tag, msg string, err error) error
}

// NewListenerFunc returns a Listener named name that calls fn.
func NewListenerFunc(name string, fn func(at time.Time, level Level, tag, msg string, err error) error) *ListenerFunc {
	return &ListenerFunc{Base: NewBase(name), fn: fn}
}

func (l *ListenerFunc) WriteLog(at time.Time, level Level, tag, msg string, err error) error {
	return l.fn(at, level, tag, msg, err)
}
