package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/trickstertwo/xbus"
	"github.com/trickstertwo/xbus/listener/console"
	"github.com/trickstertwo/xbus/listener/dailyfile"
	"github.com/trickstertwo/xbus/listener/rotating"
	sloglistener "github.com/trickstertwo/xbus/listener/slog"
	zaplistener "github.com/trickstertwo/xbus/listener/zap"
	zerologlistener "github.com/trickstertwo/xbus/listener/zerolog"
)

func init() {
	Register(console.Name, newConsole)
	Register(dailyfile.Name, newDailyFile)
	Register(rotating.Name, newRotating)
	Register(zaplistener.Name, newZap)
	Register(zerologlistener.Name, newZerolog)
	Register(sloglistener.Name, newSlog)
}

type consoleOptions struct {
	Emoji map[string]string `yaml:"emoji"`
}

func newConsole(o Options) (xbus.Listener, error) {
	var opts consoleOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}
	l := console.New()
	for name, e := range opts.Emoji {
		lvl, err := xbus.ParseLevel(name)
		if err != nil {
			return nil, errors.Wrap(err, "emoji")
		}
		l.SetEmoji(lvl, e)
	}
	return l, nil
}

type dailyFileOptions struct {
	Dir             string `yaml:"dir"`
	Prefix          string `yaml:"prefix"`
	MaxFileCount    int    `yaml:"max_file_count"`
	MaxFileAgeDays  int    `yaml:"max_file_age_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

func newDailyFile(o Options) (xbus.Listener, error) {
	var opts dailyFileOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		return nil, errors.New("dailyfile: dir is required")
	}
	return dailyfile.New(dailyfile.Options{
		Dir:             opts.Dir,
		Prefix:          opts.Prefix,
		MaxFileCount:    opts.MaxFileCount,
		MaxFileAgeDays:  opts.MaxFileAgeDays,
		CleanupSchedule: opts.CleanupSchedule,
	}), nil
}

type rotatingOptions struct {
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local_time"`
}

func newRotating(o Options) (xbus.Listener, error) {
	var opts rotatingOptions
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}
	return rotating.New(rotating.Options(opts)), nil
}

// streamOptions is shared by the framework bridges.
type streamOptions struct {
	Output       string `yaml:"output"` // stdout (default) or stderr
	Format       string `yaml:"format"` // json (default) or console/text
	TimestampKey string `yaml:"timestamp_key"`
	NamePerTag   bool   `yaml:"name_per_tag"`
}

func (s streamOptions) writer() (io.Writer, error) {
	switch s.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return nil, errors.Errorf("unknown output %q", s.Output)
	}
}

func (s streamOptions) console() (bool, error) {
	switch s.Format {
	case "", "json":
		return false, nil
	case "console", "text":
		return true, nil
	default:
		return false, errors.Errorf("unknown format %q", s.Format)
	}
}

func decodeStream(o Options) (streamOptions, io.Writer, bool, error) {
	var opts streamOptions
	if err := o.Decode(&opts); err != nil {
		return opts, nil, false, err
	}
	w, err := opts.writer()
	if err != nil {
		return opts, nil, false, err
	}
	c, err := opts.console()
	return opts, w, c, err
}

func newZap(o Options) (xbus.Listener, error) {
	opts, w, c, err := decodeStream(o)
	if err != nil {
		return nil, err
	}
	return zaplistener.NewFromConfig(zaplistener.Config{
		Writer:       w,
		Console:      c,
		TimestampKey: opts.TimestampKey,
		NamePerTag:   opts.NamePerTag,
	}), nil
}

func newZerolog(o Options) (xbus.Listener, error) {
	_, w, c, err := decodeStream(o)
	if err != nil {
		return nil, err
	}
	return zerologlistener.NewFromConfig(zerologlistener.Config{Writer: w, Console: c}), nil
}

func newSlog(o Options) (xbus.Listener, error) {
	_, w, c, err := decodeStream(o)
	if err != nil {
		return nil, err
	}
	ho := &slog.HandlerOptions{Level: slog.LevelDebug}
	var h slog.Handler
	if c {
		h = slog.NewTextHandler(w, ho)
	} else {
		h = slog.NewJSONHandler(w, ho)
	}
	return sloglistener.New(slog.New(h)), nil
}
