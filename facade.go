package xbus

// Facade helpers using the global Engine.
// Usage: xbus.Info("net", "connected")
func Log(level Level, tag, msg string, err error) { G().Publish(level, tag, msg, err) }
func Debug(tag, msg string)                       { G().Publish(LevelDebug, tag, msg, nil) }
func Trace(tag, msg string)                       { G().Publish(LevelTrace, tag, msg, nil) }
func Info(tag, msg string)                        { G().Publish(LevelInfo, tag, msg, nil) }
func Warn(tag, msg string)                        { G().Publish(LevelWarn, tag, msg, nil) }
func Error(tag string, err error, msg string)     { G().Publish(LevelError, tag, msg, err) }
func Fatal(tag string, err error, msg string)     { G().Publish(LevelFatal, tag, msg, err) }

// Tag returns a Logger bound to the global Engine.
func Tag(tag string) *Logger { return G().Logger(tag) }
