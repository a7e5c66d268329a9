// Package config loads engine and listener settings from YAML and keeps a
// running engine in sync with the file.
//
//	buffer_size: 512
//	spill_after: 2s
//	ignore_tags: [noisy]
//	listeners:
//	  - type: console
//	    min_level: debug
//	  - type: dailyfile
//	    name: audit
//	    tag_pattern: "audit.*"
//	    glob: true
//	    options:
//	      dir: /var/log/app
//	      prefix: audit-
package config

import (
	"bytes"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/trickstertwo/xbus"
)

// File is the decoded configuration document.
type File struct {
	BufferSize  int              `yaml:"buffer_size"`
	SpillAfter  time.Duration    `yaml:"spill_after"`
	StopTimeout time.Duration    `yaml:"stop_timeout"`
	IgnoreTags  []string         `yaml:"ignore_tags"`
	Listeners   []ListenerConfig `yaml:"listeners"`
}

// ListenerConfig describes one listener. Type selects the registered factory;
// Options is handed to it undecoded.
type ListenerConfig struct {
	Type           string      `yaml:"type"`
	Name           string      `yaml:"name"`
	Enabled        *bool       `yaml:"enabled"`
	MinLevel       *xbus.Level `yaml:"min_level"`
	TagPattern     string      `yaml:"tag_pattern"`
	MessagePattern string      `yaml:"message_pattern"`
	// Glob switches both patterns from regular expressions to wildcards.
	Glob    bool      `yaml:"glob"`
	Options yaml.Node `yaml:"options"`
}

// Options is the raw per-type options block.
type Options struct {
	node *yaml.Node
}

// Decode fills v from the options block. A missing block leaves v untouched.
func (o Options) Decode(v any) error {
	if o.node == nil || o.node.Kind == 0 {
		return nil
	}
	return o.node.Decode(v)
}

// Factory builds a listener of one type.
type Factory func(opts Options) (xbus.Listener, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a listener type available to configuration files. A later
// registration for the same type replaces the earlier one.
func Register(typ string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[typ] = f
}

// Types lists the registered listener types, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(typ string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[typ]
	return f, ok
}

// Load reads and parses path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(b)
}

// Parse decodes a YAML document. Unknown keys are rejected; an empty document
// yields an empty File.
func Parse(b []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "parse config")
	}
	return &f, f.Validate()
}

// Validate checks listener types and patterns without building anything.
func (f *File) Validate() error {
	var err error
	for i, s := range f.Listeners {
		if s.Type == "" {
			err = multierr.Append(err, errors.Errorf("listeners[%d]: missing type", i))
			continue
		}
		if _, ok := lookup(s.Type); !ok {
			err = multierr.Append(err, errors.Errorf("listeners[%d]: unknown type %q", i, s.Type))
		}
		if !s.Glob {
			for _, p := range []string{s.TagPattern, s.MessagePattern} {
				if p == "" {
					continue
				}
				if _, rerr := xbus.Regex(p); rerr != nil {
					err = multierr.Append(err, errors.Wrapf(rerr, "listeners[%d]", i))
				}
			}
		}
	}
	return err
}

// BuildListeners creates every configured listener in order. On failure the
// listeners built so far are closed.
func (f *File) BuildListeners() ([]xbus.Listener, error) {
	out := make([]xbus.Listener, 0, len(f.Listeners))
	for i := range f.Listeners {
		l, err := f.Listeners[i].build()
		if err != nil {
			_ = closeAll(out)
			return nil, errors.Wrapf(err, "listeners[%d] (%s)", i, f.Listeners[i].Type)
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *ListenerConfig) build() (xbus.Listener, error) {
	factory, ok := lookup(s.Type)
	if !ok {
		return nil, errors.Errorf("unknown type %q", s.Type)
	}
	l, err := factory(Options{node: &s.Options})
	if err != nil {
		return nil, err
	}
	if l == nil || l.Filter() == nil {
		return nil, xbus.ErrNilListener
	}
	if s.Name != "" {
		n, ok := l.(interface{ SetName(string) })
		if !ok {
			return nil, errors.Errorf("type %q does not support renaming", s.Type)
		}
		n.SetName(s.Name)
	}
	if err := s.applyFilter(l.Filter()); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *ListenerConfig) applyFilter(flt *xbus.Filter) error {
	if s.Enabled != nil {
		flt.SetEnabled(*s.Enabled)
	}
	if s.MinLevel != nil {
		flt.SetMinLevel(*s.MinLevel)
	}
	if s.Glob {
		if s.TagPattern != "" {
			flt.SetTagMatcher(xbus.Glob(s.TagPattern))
		}
		if s.MessagePattern != "" {
			flt.SetMessageMatcher(xbus.Glob(s.MessagePattern))
		}
		return nil
	}
	if err := flt.SetTagPattern(s.TagPattern); err != nil {
		return err
	}
	return flt.SetMessagePattern(s.MessagePattern)
}

// EngineConfig returns the engine settings with freshly built listeners.
// Clock and Diagnostics are left for the caller.
func (f *File) EngineConfig() (xbus.Config, error) {
	ls, err := f.BuildListeners()
	if err != nil {
		return xbus.Config{}, err
	}
	return xbus.Config{
		BufferSize:  f.BufferSize,
		SpillAfter:  f.SpillAfter,
		StopTimeout: f.StopTimeout,
		IgnoreTags:  append([]string(nil), f.IgnoreTags...),
		Listeners:   ls,
	}, nil
}

// Apply swaps e's listeners and ignored tags for the ones in f, then closes
// the replaced listeners. Buffer settings only take effect on a new engine.
// On a build error e is left unchanged.
func Apply(e *xbus.Engine, f *File) error {
	ls, err := f.BuildListeners()
	if err != nil {
		return err
	}
	old := e.Listeners()
	if err := e.ReplaceListeners(ls...); err != nil {
		return multierr.Append(err, closeAll(ls))
	}
	e.UnignoreTags(e.IgnoredTags()...)
	e.IgnoreTags(f.IgnoreTags...)
	return closeAll(old)
}

func closeAll(ls []xbus.Listener) error {
	var err error
	for _, l := range ls {
		if c, ok := l.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
