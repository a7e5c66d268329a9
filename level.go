package xbus

import (
	"fmt"
	"strconv"
	"strings"
)

// Level is the severity of an event. The numeric weights are part of the
// contract: listeners compare levels numerically, so Debug sorts below Trace.
type Level int32

const (
	LevelDebug Level = 0
	LevelTrace Level = 1
	LevelInfo  Level = 2
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelFatal Level = 16
)

// Levels lists every level in ascending order.
var Levels = []Level{LevelDebug, LevelTrace, LevelInfo, LevelWarn, LevelError, LevelFatal}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "LEVEL(" + strconv.Itoa(int(l)) + ")"
	}
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(l.String())), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
