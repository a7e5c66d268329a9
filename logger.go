package xbus

import "sync/atomic"

// Logger is a tag-bound handle onto an Engine. It is cheap to create and
// safe for concurrent use. Fatal never exits the process.
type Logger struct {
	e   *Engine
	tag string
}

// Logger returns a handle that publishes under tag.
func (e *Engine) Logger(tag string) *Logger {
	return &Logger{e: e, tag: tag}
}

func (l *Logger) Tag() string     { return l.tag }
func (l *Logger) Engine() *Engine { return l.e }

// Enabled reports whether events at level could reach any listener.
func (l *Logger) Enabled(level Level) bool { return l.e.Enabled(level) }

// Log publishes msg at level; err may be nil.
func (l *Logger) Log(level Level, msg string, err error) {
	l.e.Publish(level, l.tag, msg, err)
}

// LogFn publishes the result of fn, calling it only when level is enabled.
func (l *Logger) LogFn(level Level, fn func() string, err error) {
	l.e.PublishFunc(level, l.tag, fn, err)
}

// Level entry points.
func (l *Logger) Debug(msg string) { l.e.Publish(LevelDebug, l.tag, msg, nil) }
func (l *Logger) Trace(msg string) { l.e.Publish(LevelTrace, l.tag, msg, nil) }
func (l *Logger) Info(msg string)  { l.e.Publish(LevelInfo, l.tag, msg, nil) }
func (l *Logger) Warn(msg string)  { l.e.Publish(LevelWarn, l.tag, msg, nil) }
func (l *Logger) Error(msg string) { l.e.Publish(LevelError, l.tag, msg, nil) }
func (l *Logger) Fatal(msg string) { l.e.Publish(LevelFatal, l.tag, msg, nil) }

// Variants carrying an associated error.
func (l *Logger) InfoErr(err error, msg string)  { l.e.Publish(LevelInfo, l.tag, msg, err) }
func (l *Logger) WarnErr(err error, msg string)  { l.e.Publish(LevelWarn, l.tag, msg, err) }
func (l *Logger) ErrorErr(err error, msg string) { l.e.Publish(LevelError, l.tag, msg, err) }
func (l *Logger) FatalErr(err error, msg string) { l.e.Publish(LevelFatal, l.tag, msg, err) }

// Lazy variants; fn runs only when the level is enabled.
func (l *Logger) DebugFn(fn func() string) { l.e.PublishFunc(LevelDebug, l.tag, fn, nil) }
func (l *Logger) TraceFn(fn func() string) { l.e.PublishFunc(LevelTrace, l.tag, fn, nil) }
func (l *Logger) InfoFn(fn func() string)  { l.e.PublishFunc(LevelInfo, l.tag, fn, nil) }
func (l *Logger) WarnFn(fn func() string)  { l.e.PublishFunc(LevelWarn, l.tag, fn, nil) }
func (l *Logger) ErrorFn(fn func() string) { l.e.PublishFunc(LevelError, l.tag, fn, nil) }
func (l *Logger) FatalFn(fn func() string) { l.e.PublishFunc(LevelFatal, l.tag, fn, nil) }

// Facade: global access (Singleton + Facade).
var global atomic.Pointer[Engine]

// SetGlobal sets the process-wide Engine used by the package-level helpers.
func SetGlobal(e *Engine) { global.Store(e) }

// G returns the global Engine; panic if unset to surface misconfig early.
func G() *Engine {
	e := global.Load()
	if e == nil {
		panic("xbus: global engine not set. Build one and call xbus.SetGlobal(...)")
	}
	return e
}
