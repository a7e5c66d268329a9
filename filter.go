package xbus

import (
	"fmt"
	"sync/atomic"
)

// Filter is the mutable per-listener delivery configuration. All fields are
// safe to change while events are being delivered. Changing Enabled or
// MinLevel does not update the engine threshold; call Engine.Recalculate.
//
// The zero value is enabled, accepts every level and has no matchers.
type Filter struct {
	disabled atomic.Bool
	minLevel atomic.Int32
	tag      atomic.Pointer[matcherBox]
	message  atomic.Pointer[matcherBox]
}

type matcherBox struct{ m Matcher }

// NewFilter returns an enabled Filter with the given floor.
func NewFilter(min Level) *Filter {
	f := &Filter{}
	f.SetMinLevel(min)
	return f
}

func (f *Filter) Enabled() bool      { return !f.disabled.Load() }
func (f *Filter) SetEnabled(on bool) { f.disabled.Store(!on) }

func (f *Filter) MinLevel() Level     { return Level(f.minLevel.Load()) }
func (f *Filter) SetMinLevel(l Level) { f.minLevel.Store(int32(l)) }

// TagMatcher returns the tag matcher or nil.
func (f *Filter) TagMatcher() Matcher { return load(&f.tag) }

// MessageMatcher returns the message matcher or nil.
func (f *Filter) MessageMatcher() Matcher { return load(&f.message) }

// SetTagMatcher installs m; nil accepts every tag.
func (f *Filter) SetTagMatcher(m Matcher) { store(&f.tag, m) }

// SetMessageMatcher installs m; nil accepts every message.
func (f *Filter) SetMessageMatcher(m Matcher) { store(&f.message, m) }

// SetTagPattern compiles a whole-match regular expression for tags. An empty
// pattern clears the matcher. On error the previous matcher is kept.
func (f *Filter) SetTagPattern(pattern string) error {
	m, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("xbus: tag pattern: %w", err)
	}
	f.SetTagMatcher(m)
	return nil
}

// SetMessagePattern is SetTagPattern for message text.
func (f *Filter) SetMessagePattern(pattern string) error {
	m, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("xbus: message pattern: %w", err)
	}
	f.SetMessageMatcher(m)
	return nil
}

// Accept reports whether e passes this filter. Cheap checks run first.
func (f *Filter) Accept(e *Event) bool {
	if f.disabled.Load() {
		return false
	}
	if e.level < Level(f.minLevel.Load()) {
		return false
	}
	if m := load(&f.tag); m != nil && !m.Match(e.tag) {
		return false
	}
	if m := load(&f.message); m != nil && !m.Match(e.msg) {
		return false
	}
	return true
}

func (f *Filter) String() string {
	s := fmt.Sprintf("enabled=%t, minLevel=%s", f.Enabled(), f.MinLevel())
	if m := f.TagMatcher(); m != nil {
		s += fmt.Sprintf(", tagRegex='%v'", m)
	}
	if m := f.MessageMatcher(); m != nil {
		s += fmt.Sprintf(", messageRegex='%v'", m)
	}
	return s
}

func compilePattern(pattern string) (Matcher, error) {
	if pattern == "" {
		return nil, nil
	}
	return Regex(pattern)
}

func load(p *atomic.Pointer[matcherBox]) Matcher {
	if b := p.Load(); b != nil {
		return b.m
	}
	return nil
}

func store(p *atomic.Pointer[matcherBox], m Matcher) {
	if m == nil {
		p.Store(nil)
		return
	}
	p.Store(&matcherBox{m: m})
}
