package xbus

import (
	"regexp"

	"github.com/tidwall/match"
)

// Matcher decides whether a tag or message passes a listener filter.
type Matcher interface {
	Match(s string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(string) bool

func (f MatcherFunc) Match(s string) bool { return f(s) }

type regexMatcher struct {
	src string
	re  *regexp.Regexp
}

// Regex compiles pattern into a Matcher that must match the whole input.
func Regex(pattern string) (Matcher, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, err
	}
	return &regexMatcher{src: pattern, re: re}, nil
}

// MustRegex is like Regex but panics on an invalid pattern.
func MustRegex(pattern string) Matcher {
	m, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *regexMatcher) Match(s string) bool { return m.re.MatchString(s) }
func (m *regexMatcher) String() string      { return m.src }

// globMatcher supports '*' and '?' wildcards.
type globMatcher string

// Glob returns a wildcard Matcher ('*' any run, '?' any single rune).
func Glob(pattern string) Matcher { return globMatcher(pattern) }

func (g globMatcher) Match(s string) bool { return match.Match(s, string(g)) }
func (g globMatcher) String() string      { return string(g) }
