package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trickstertwo/xbus"
)

// Watch reloads path into e whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// are picked up. A file that fails to load or build is logged and the
// current listeners stay in place. A nil log uses e.Diagnostics().
func Watch(ctx context.Context, path string, e *xbus.Engine, log *zap.Logger) error {
	if log == nil {
		log = e.Diagnostics()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "watch config")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "watch config")
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}
	log = log.With(zap.String("path", abs))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			applied, err := reload(abs, e)
			if err != nil {
				log.Warn("config reload failed", zap.Error(err))
				continue
			}
			if !applied {
				continue
			}
			log.Info("config reloaded", zap.Int("listeners", len(e.Listeners())))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}

// reload skips a zero-length file: writers truncate before they write.
func reload(path string, e *xbus.Engine) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrap(err, "read config")
	}
	if len(b) == 0 {
		return false, nil
	}
	f, err := Parse(b)
	if err != nil {
		return false, err
	}
	return true, Apply(e, f)
}
