package am

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
)

// ReloadFunc receives each reload of a watched file: the freshly loaded
// config, or the error that kept it from loading or validating.
type ReloadFunc func(*Config, error)

// Watcher reloads a config file whenever it changes on disk.
type Watcher struct {
	path     string
	abs      string
	fw       *fsnotify.Watcher
	debounce time.Duration
	onReload ReloadFunc
	log      *zap.SugaredLogger
}

// NewWatcher starts watching path. The parent directory is watched rather
// than the file so that atomic rename-on-save keeps being seen. Editors emit
// bursts of events per save, so reloads wait for debounce of quiet first.
func NewWatcher(path string, debounce time.Duration, onReload ReloadFunc, log *zap.SugaredLogger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}
	return &Watcher{
		path:     path,
		abs:      abs,
		fw:       fw,
		debounce: debounce,
		onReload: onReload,
		log:      logger.OrNop(log),
	}, nil
}

// Run delivers reloads until ctx is done, then releases the watch.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.Debugw("Config file changed", logger.FieldPath, ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cfg, err := LoadFromFile(w.path)
			if err != nil {
				w.log.Warnw("Config reload failed", logger.FieldPath, w.path, logger.FieldError, err.Error())
			} else {
				w.log.Infow("Config reloaded", logger.FieldPath, w.path)
			}
			w.onReload(cfg, err)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("Config watcher error", logger.FieldError, err.Error())
		}
	}
}
