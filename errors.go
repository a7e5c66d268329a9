package xbus

import "errors"

var (
	// ErrNilListener is returned when a nil Listener is registered.
	ErrNilListener = errors.New("xbus: nil listener")
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("xbus: engine closed")
	// ErrUnknownLevel wraps unparsable level names.
	ErrUnknownLevel = errors.New("xbus: unknown level")
)
