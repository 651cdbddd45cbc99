package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports edits to the config file. It does not start goroutines of
// its own; the owner selects on Events and calls Reload for relevant ones.
type Watcher struct {
	path string
	fs   *fsnotify.Watcher
	log  *zerolog.Logger
}

// NewWatcher watches the directory holding path, so editors that replace the
// file by rename are still observed.
func NewWatcher(path string, logger *zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{path: abs, fs: fw, log: logger}, nil
}

// Events is the raw fsnotify event stream.
func (w *Watcher) Events() <-chan fsnotify.Event {
	return w.fs.Events
}

// Errors is the fsnotify error stream.
func (w *Watcher) Errors() <-chan error {
	return w.fs.Errors
}

// Relevant reports whether ev changed the watched config file.
func (w *Watcher) Relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// Reload reads the config file again.
func (w *Watcher) Reload() (Config, error) {
	cfg, _, err := Load(w.log, w.path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
