// Package zaplistener bridges xbus events into go.uber.org/zap.
package zaplistener

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trickstertwo/xbus"
)

// Name is the listener name used for registry lookups.
const Name = "zap"

// Listener forwards events to a zap.Logger.
//
//   - The event timestamp is written as an RFC3339Nano string under tsKey so
//     the engine clock, not zap's, is authoritative.
//   - The tag becomes the logger name (one child logger per tag, cached) when
//     NamePerTag is set, otherwise a "tag" field.
//   - FATAL maps to zap's Error level; a listener must not exit the process.
type Listener struct {
	xbus.Base

	l          *zap.Logger
	tsKey      string
	namePerTag bool
	named      sync.Map // tag -> *zap.Logger
}

// Options tune field layout.
type Options struct {
	TimestampKey string // default "ts"
	NamePerTag   bool
}

// New creates a listener for l; nil means zap.NewNop().
func New(l *zap.Logger, opts Options) *Listener {
	if l == nil {
		l = zap.NewNop()
	}
	if opts.TimestampKey == "" {
		opts.TimestampKey = "ts"
	}
	return &Listener{
		Base:       xbus.NewBase(Name),
		l:          l,
		tsKey:      opts.TimestampKey,
		namePerTag: opts.NamePerTag,
	}
}

// Config is an explicit, code-first configuration of the backing zap logger.
type Config struct {
	Writer       io.Writer // default: os.Stdout
	Console      bool      // console encoder instead of JSON
	TimestampKey string    // default "ts"
	NamePerTag   bool
}

// NewFromConfig builds the zap logger itself. zap filters at Debug; the
// listener Filter is the only level gate.
func NewFromConfig(cfg Config) *Listener {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "", // the listener injects its own timestamp field
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	var enc zapcore.Encoder
	if cfg.Console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel)
	return New(zap.New(core), Options{TimestampKey: cfg.TimestampKey, NamePerTag: cfg.NamePerTag})
}

func (l *Listener) WriteLog(at time.Time, level xbus.Level, tag, msg string, err error) error {
	zl := l.l
	if l.namePerTag {
		zl = l.loggerFor(tag)
	}
	ce := zl.Check(toZapLevel(level), msg)
	if ce == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 3)
	fields = append(fields, zap.String(l.tsKey, at.UTC().Format(time.RFC3339Nano)))
	if !l.namePerTag {
		fields = append(fields, zap.String("tag", tag))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
	return nil
}

func (l *Listener) loggerFor(tag string) *zap.Logger {
	if v, ok := l.named.Load(tag); ok {
		return v.(*zap.Logger)
	}
	v, _ := l.named.LoadOrStore(tag, l.l.Named(tag))
	return v.(*zap.Logger)
}

// Close flushes buffered output. Sync errors are dropped: zap reports
// EINVAL when syncing a terminal.
func (l *Listener) Close() error {
	_ = l.l.Sync()
	return nil
}

func toZapLevel(l xbus.Level) zapcore.Level {
	switch l {
	case xbus.LevelDebug, xbus.LevelTrace:
		return zapcore.DebugLevel // zap has no trace; map to debug
	case xbus.LevelInfo:
		return zapcore.InfoLevel
	case xbus.LevelWarn:
		return zapcore.WarnLevel
	default:
		// Avoid Fatal/DPanic to prevent exits in library code.
		return zapcore.ErrorLevel
	}
}
