// Package dailyfile provides a listener writing one log file per day,
// named <prefix>YYYYMMDD.log, with age and count based retention.
package dailyfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/trickstertwo/xclock"
	"go.uber.org/multierr"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/internal/render"
)

// Name is the listener name used for registry lookups.
const Name = "dailyfile"

const (
	DefaultMaxFileCount   = 30
	DefaultMaxFileAgeDays = 90
)

// ErrorHandler receives failures from scheduled cleanups.
type ErrorHandler func(error)

// Options configures the listener.
type Options struct {
	// Dir holds the log files. An empty Dir disables writing.
	Dir string
	// Prefix is prepended to YYYYMMDD.log.
	Prefix string
	// MaxFileCount keeps at most this many files; defaults to 30.
	MaxFileCount int
	// MaxFileAgeDays deletes files last modified earlier; defaults to 90.
	MaxFileAgeDays int
	// CleanupSchedule is an optional cron expression (e.g. "@daily") for
	// periodic cleanup in addition to the one at start.
	CleanupSchedule string
	// Clock drives retention cutoffs; defaults to xclock.Default().
	Clock xclock.Clock
	// ErrorHandler receives scheduled cleanup failures; defaults to stderr.
	ErrorHandler ErrorHandler
}

// Listener appends "HH:MM:SS.mmm [LEVEL] tag message" lines to the file of
// the event's day.
type Listener struct {
	xbus.Base

	mu   sync.Mutex
	opts Options
	file *os.File
	day  string
	cron *cron.Cron
}

func defaultErrorHandler(err error) {
	fmt.Fprintf(os.Stderr, "xbus dailyfile: %v\n", err)
}

// New creates a daily file listener.
func New(opts Options) *Listener {
	if opts.MaxFileCount <= 0 {
		opts.MaxFileCount = DefaultMaxFileCount
	}
	if opts.MaxFileAgeDays <= 0 {
		opts.MaxFileAgeDays = DefaultMaxFileAgeDays
	}
	if opts.Clock == nil {
		opts.Clock = xclock.Default()
	}
	if opts.ErrorHandler == nil {
		opts.ErrorHandler = defaultErrorHandler
	}
	return &Listener{Base: xbus.NewBase(Name), opts: opts}
}

// Dir returns the current log directory.
func (l *Listener) Dir() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts.Dir
}

// SetDir moves future writes to dir.
func (l *Listener) SetDir(dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts.Dir = dir
	return l.closeFile()
}

// FileName returns the file path used for events at t.
func (l *Listener) FileName(t time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fileName(t.Local().Format(render.DayLayout))
}

func (l *Listener) fileName(day string) string {
	if l.opts.Dir == "" {
		return ""
	}
	return filepath.Join(l.opts.Dir, l.opts.Prefix+day+".log")
}

func (l *Listener) WriteLog(at time.Time, level xbus.Level, tag, msg string, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ferr := l.fileFor(at)
	if ferr != nil {
		return errors.Wrapf(ferr, "can not write: %s %s %s", level, tag, msg)
	}

	b := make([]byte, 0, 64+len(tag)+len(msg))
	b = render.AppendTime(b, at)
	b = append(b, " ["...)
	b = append(b, level.String()...)
	b = append(b, "] "...)
	b = render.AppendMessage(b, tag, msg, err)
	_, werr := f.Write(b)
	return werr
}

// fileFor returns the open file for at's day, rotating when the day changes.
func (l *Listener) fileFor(at time.Time) (*os.File, error) {
	day := at.Local().Format(render.DayLayout)
	if l.file != nil && l.day == day {
		return l.file, nil
	}
	name := l.fileName(day)
	if name == "" {
		return nil, errors.New("no log directory configured")
	}
	if st, err := os.Stat(l.opts.Dir); err != nil || !st.IsDir() {
		return nil, errors.Errorf("log directory %q is not usable", l.opts.Dir)
	}
	if err := l.closeFile(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l.file, l.day = f, day
	return f, nil
}

func (l *Listener) closeFile() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.day = nil, ""
	return err
}

// OnStart runs retention cleanup and starts the cleanup schedule, if any.
func (l *Listener) OnStart() error {
	err := l.PerformCleanup()
	if l.opts.CleanupSchedule == "" {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cron != nil {
		return err
	}
	c := cron.New()
	if _, cerr := c.AddFunc(l.opts.CleanupSchedule, func() {
		if err := l.PerformCleanup(); err != nil {
			l.opts.ErrorHandler(err)
		}
	}); cerr != nil {
		return multierr.Append(err, errors.Wrapf(cerr, "cleanup schedule %q", l.opts.CleanupSchedule))
	}
	c.Start()
	l.cron = c
	return err
}

// PerformCleanup deletes files older than MaxFileAgeDays, then the oldest
// files beyond MaxFileCount. Only files named <prefix>*.log are considered.
func (l *Listener) PerformCleanup() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := l.opts.Dir
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "log cleanup")
	}

	type logFile struct {
		path string
		mod  time.Time
	}
	var files []logFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, l.opts.Prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: filepath.Join(dir, name), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	cutoff := l.opts.Clock.Now().Add(-time.Duration(l.opts.MaxFileAgeDays) * 24 * time.Hour)
	var doomed, kept []logFile
	for _, f := range files {
		if f.mod.Before(cutoff) {
			doomed = append(doomed, f)
		} else {
			kept = append(kept, f)
		}
	}
	if extra := len(kept) - l.opts.MaxFileCount; extra > 0 {
		doomed = append(doomed, kept[:extra]...)
	}

	var errs error
	for _, f := range doomed {
		if l.file != nil && l.file.Name() == f.path {
			if err := l.closeFile(); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		if err := os.Remove(f.path); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "delete %s", filepath.Base(f.path)))
		}
	}
	return errs
}

// Close stops the cleanup schedule and closes the current file.
func (l *Listener) Close() error {
	l.mu.Lock()
	c := l.cron
	l.cron = nil
	l.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeFile()
}
