package server

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// ApplyLogLevel sets the process-wide log level.
func ApplyLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// watchConfig reloads the config file on change and applies the settings
// that can change at runtime. Only log.level does today. The directory is
// watched so editors that replace the file by rename are seen.
func (d *Daemon) watchConfig() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(d.cfg.File)); err != nil {
		watcher.Close()
		return err
	}
	d.watcher = watcher
	go d.watchLoop(watcher)

	d.logger.Info().Str("file", d.cfg.File).Msg("watching config for changes")
	return nil
}

func (d *Daemon) watchLoop(watcher *fsnotify.Watcher) {
	var mu sync.Mutex
	var timer *time.Timer
	target := filepath.Clean(d.cfg.File)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, d.reloadConfig)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (d *Daemon) reloadConfig() {
	cfg, err := LoadConfig(d.cfg.File)
	if err != nil {
		d.logger.Error().Err(err).Msg("reload config")
		return
	}
	if err := ApplyLogLevel(cfg.Log.Level); err != nil {
		d.logger.Error().Err(err).Str("level", cfg.Log.Level).Msg("reload config: bad log level")
		return
	}
	d.logger.Info().Str("level", cfg.Log.Level).Msg("config reloaded")
	if d.reloaded != nil {
		d.reloaded(cfg)
	}
}
