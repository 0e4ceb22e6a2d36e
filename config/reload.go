package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// LiveConfig holds a Config that is kept current by an fsnotify watch on its
// source file. Only the tunables safe to change without a restart — buffer
// timing and room reconciliation cadence — should be read from it on every
// use; provider credentials and the transport URL are read once at startup.
type LiveConfig struct {
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
	onError func(error)
}

// WatchFile loads configuration from configPath (plus env overrides, same
// as Load) and keeps it current by watching configPath for writes. The
// returned LiveConfig.Current always reflects the last successfully parsed
// file; a write that fails to parse is logged via onError (if set) and the
// previous config is kept.
func WatchFile(configPath string, onError func(error)) (*LiveConfig, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(configPath); err != nil {
		w.Close()
		return nil, err
	}

	lc := &LiveConfig{watcher: w, onError: onError}
	lc.current.Store(cfg)

	go lc.loop(configPath)
	return lc, nil
}

func (lc *LiveConfig) loop(configPath string) {
	for {
		select {
		case ev, ok := <-lc.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(configPath)
			if err != nil {
				if lc.onError != nil {
					lc.onError(err)
				}
				continue
			}
			lc.current.Store(cfg)
		case err, ok := <-lc.watcher.Errors:
			if !ok {
				return
			}
			if lc.onError != nil {
				lc.onError(err)
			}
		}
	}
}

// Current returns the most recently loaded Config.
func (lc *LiveConfig) Current() *Config {
	return lc.current.Load()
}

// Close stops the underlying file watch.
func (lc *LiveConfig) Close() error {
	return lc.watcher.Close()
}
