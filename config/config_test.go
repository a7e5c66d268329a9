package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/listener/rotating"
)

type memoryListener struct {
	*xbus.ListenerFunc
	closed atomic.Bool
}

func (m *memoryListener) Close() error {
	m.closed.Store(true)
	return nil
}

type memoryOptions struct {
	Label string `yaml:"label"`
}

var lastMemoryLabel atomic.Value

func init() {
	Register("memory", func(o Options) (xbus.Listener, error) {
		var opts memoryOptions
		if err := o.Decode(&opts); err != nil {
			return nil, err
		}
		if opts.Label != "" {
			lastMemoryLabel.Store(opts.Label)
		}
		return &memoryListener{ListenerFunc: xbus.NewListenerFunc("memory", func(time.Time, xbus.Level, string, string, error) error {
			return nil
		})}, nil
	})
}

func newEngine(t *testing.T) *xbus.Engine {
	t.Helper()
	e := xbus.New(xbus.Config{Diagnostics: zap.NewNop()})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

const doc = `
buffer_size: 64
spill_after: 3s
stop_timeout: 1s
ignore_tags: [noisy, chatty]
listeners:
  - type: memory
    name: audit
    min_level: debug
    tag_pattern: "audit.*"
    glob: true
    options:
      label: first
  - type: memory
    enabled: false
    min_level: warning
    message_pattern: "disk .*"
`

func TestParse_FullDocument(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 64, f.BufferSize)
	assert.Equal(t, 3*time.Second, f.SpillAfter)
	assert.Equal(t, time.Second, f.StopTimeout)
	assert.Equal(t, []string{"noisy", "chatty"}, f.IgnoreTags)
	require.Len(t, f.Listeners, 2)

	s := f.Listeners[0]
	assert.Equal(t, "memory", s.Type)
	assert.Equal(t, "audit", s.Name)
	require.NotNil(t, s.MinLevel)
	assert.Equal(t, xbus.LevelDebug, *s.MinLevel)
	assert.True(t, s.Glob)
	assert.Nil(t, s.Enabled)

	require.NotNil(t, f.Listeners[1].Enabled)
	assert.False(t, *f.Listeners[1].Enabled)
	assert.Equal(t, xbus.LevelWarn, *f.Listeners[1].MinLevel)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Listeners)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "buffer: 1\n",
		"unknown type": "listeners:\n  - type: carrier-pigeon\n",
		"missing type": "listeners:\n  - name: x\n",
		"bad regex":    "listeners:\n  - type: memory\n    tag_pattern: \"(\"\n",
		"bad level":    "listeners:\n  - type: memory\n    min_level: loud\n",
		"bad duration": "spill_after: soon\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestBuildListeners_AppliesFilterSettings(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)

	ls, err := f.BuildListeners()
	require.NoError(t, err)
	require.Len(t, ls, 2)
	assert.Equal(t, "first", lastMemoryLabel.Load())

	audit := ls[0]
	assert.Equal(t, "audit", audit.Name())
	assert.Equal(t, xbus.LevelDebug, audit.Filter().MinLevel())
	assert.True(t, audit.Filter().Enabled())
	assert.True(t, audit.Filter().TagMatcher().Match("audit.login"))
	assert.False(t, audit.Filter().TagMatcher().Match("db"))

	second := ls[1]
	assert.Equal(t, "memory", second.Name())
	assert.False(t, second.Filter().Enabled())
	assert.Equal(t, xbus.LevelWarn, second.Filter().MinLevel())
	assert.Nil(t, second.Filter().TagMatcher())
	assert.True(t, second.Filter().MessageMatcher().Match("disk full"))
	assert.False(t, second.Filter().MessageMatcher().Match("the disk full"))
}

func TestEngineConfig(t *testing.T) {
	f, err := Parse([]byte(doc))
	require.NoError(t, err)

	cfg, err := f.EngineConfig()
	require.NoError(t, err)
	cfg.Diagnostics = zap.NewNop()

	e := xbus.New(cfg)
	defer e.Close()

	require.Len(t, e.Listeners(), 2)
	// The disabled listener does not lower the threshold.
	assert.Equal(t, xbus.LevelDebug, e.Threshold())
	assert.ElementsMatch(t, []string{"noisy", "chatty"}, e.IgnoredTags())
}

func TestApply_ReplacesListenersAndClosesOld(t *testing.T) {
	e := newEngine(t)
	old := &memoryListener{ListenerFunc: xbus.NewListenerFunc("old", func(time.Time, xbus.Level, string, string, error) error { return nil })}
	require.NoError(t, e.AddListeners(old))
	e.IgnoreTags("stale")

	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, Apply(e, f))

	assert.True(t, old.closed.Load())
	assert.Nil(t, e.FindListener("old"))
	assert.NotNil(t, e.FindListener("audit"))
	assert.ElementsMatch(t, []string{"noisy", "chatty"}, e.IgnoredTags())
}

func TestApply_BuildErrorKeepsEngine(t *testing.T) {
	e := newEngine(t)
	keep := xbus.NewListenerFunc("keep", func(time.Time, xbus.Level, string, string, error) error { return nil })
	require.NoError(t, e.AddListeners(keep))

	f := &File{Listeners: []ListenerConfig{{Type: "dailyfile"}}}
	require.Error(t, Apply(e, f))
	assert.Same(t, keep, e.FindListener("keep"))
}

func TestBuiltins(t *testing.T) {
	types := Types()
	for _, want := range []string{"console", "dailyfile", "rotating", "zap", "zerolog", "slog"} {
		assert.Contains(t, types, want)
	}

	dir := t.TempDir()
	in := "listeners:\n" +
		"  - type: rotating\n    options:\n      filename: " + filepath.Join(dir, "app.log") + "\n      max_size_mb: 5\n" +
		"  - type: dailyfile\n    options:\n      dir: " + dir + "\n      prefix: app-\n" +
		"  - type: zap\n    options:\n      output: stderr\n      format: console\n" +
		"  - type: zerolog\n" +
		"  - type: slog\n    options:\n      format: text\n" +
		"  - type: console\n    options:\n      emoji:\n        warn: \"!\"\n"
	f, err := Parse([]byte(in))
	require.NoError(t, err)

	ls, err := f.BuildListeners()
	require.NoError(t, err)
	require.Len(t, ls, 6)

	rl, ok := ls[0].(*rotating.Listener)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "app.log"), rl.Filename())
	require.NoError(t, closeAll(ls))
}

func TestBuiltins_BadOptions(t *testing.T) {
	for name, in := range map[string]string{
		"dailyfile without dir": "listeners:\n  - type: dailyfile\n",
		"zap bad output":        "listeners:\n  - type: zap\n    options:\n      output: printer\n",
		"slog bad format":       "listeners:\n  - type: slog\n    options:\n      format: xml\n",
		"console bad level":     "listeners:\n  - type: console\n    options:\n      emoji:\n        loud: x\n",
	} {
		t.Run(name, func(t *testing.T) {
			f, err := Parse([]byte(in))
			require.NoError(t, err)
			_, err = f.BuildListeners()
			assert.Error(t, err)
		})
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xbus.yaml")
	write := func(name string) {
		require.NoError(t, os.WriteFile(path, []byte("listeners:\n  - type: memory\n    name: "+name+"\n"), 0o644))
	}
	write("a")

	e := newEngine(t)
	f, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Apply(e, f))
	require.NotNil(t, e.FindListener("a"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, e, zap.NewNop()) }()

	// Rewrite until the watcher has picked up a change; it may attach after
	// the first write.
	require.Eventually(t, func() bool {
		write("b")
		return e.FindListener("b") != nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.Nil(t, e.FindListener("a"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_BadFileKeepsListeners(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listeners:\n  - type: memory\n    name: a\n"), 0o644))

	e := newEngine(t)
	f, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Apply(e, f))

	applied, err := reload(path, e)
	require.NoError(t, err)
	assert.True(t, applied)

	require.NoError(t, os.WriteFile(path, []byte("listeners: [\n"), 0o644))
	applied, err = reload(path, e)
	assert.Error(t, err)
	assert.False(t, applied)
	assert.NotNil(t, e.FindListener("a"))

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	applied, err = reload(path, e)
	assert.NoError(t, err)
	assert.False(t, applied)
	assert.NotNil(t, e.FindListener("a"))
}
