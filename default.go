package xbus

import "sync/atomic"

// defaultListenerFactory is set by a listener package (listener/console) in
// its init() to avoid import cycles. Default() uses it to build an engine.
var defaultListenerFactory atomic.Pointer[func() Listener]

// RegisterDefaultListenerFactory registers the constructor used by Default.
// Listener packages should call this from init().
// Example (in listener/console):
//
//	func init() {
//	  xbus.RegisterDefaultListenerFactory(func() xbus.Listener { return console.New() })
//	}
func RegisterDefaultListenerFactory(f func() Listener) {
	defaultListenerFactory.Store(&f)
}

// Default creates an engine with one listener from the registered factory,
// opened at LevelDebug. E.g. side import github.com/trickstertwo/xbus/listener/console.
// Panics if no factory is registered.
func Default() *Engine {
	f := defaultListenerFactory.Load()
	if f == nil {
		panic("xbus: no default listener registered. Import listener/console or call xbus.RegisterDefaultListenerFactory")
	}
	l := (*f)()
	l.Filter().SetMinLevel(LevelDebug)
	return New(Config{Listeners: []Listener{l}})
}

// UseDefault creates a Default engine and sets it as global.
func UseDefault() *Engine {
	e := Default()
	SetGlobal(e)
	return e
}

// UseListeners builds an engine over ls and sets it as global.
func UseListeners(ls ...Listener) *Engine {
	e := New(Config{Listeners: ls})
	SetGlobal(e)
	return e
}
