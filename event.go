package xbus

import (
	"strings"
	"time"
)

// Event is a single log occurrence. It is immutable after construction and is
// shared by pointer between every dispatch loop that observes it.
type Event struct {
	at    time.Time
	level Level
	tag   string
	msg   string
	err   error
}

// NewEvent builds an Event. NUL characters are stripped from msg.
func NewEvent(at time.Time, level Level, tag, msg string, err error) *Event {
	return &Event{
		at:    at,
		level: level,
		tag:   tag,
		msg:   sanitize(msg),
		err:   err,
	}
}

func (e *Event) At() time.Time   { return e.at }
func (e *Event) Level() Level    { return e.level }
func (e *Event) Tag() string     { return e.tag }
func (e *Event) Message() string { return e.msg }
func (e *Event) Err() error      { return e.err }

func (e *Event) String() string {
	var sb strings.Builder
	sb.WriteString("Event(level=")
	sb.WriteString(e.level.String())
	sb.WriteString(", tag='")
	sb.WriteString(e.tag)
	sb.WriteString("', at=")
	sb.WriteString(e.at.Format(time.RFC3339Nano))
	if e.err != nil {
		sb.WriteString(", err=")
		sb.WriteString(e.err.Error())
	}
	sb.WriteString(", msg='")
	sb.WriteString(e.msg)
	sb.WriteString("')")
	return sb.String()
}

func sanitize(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}
