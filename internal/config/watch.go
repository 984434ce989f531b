package config

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file on change, debounced to ReloadWindow so a
// burst of editor save events (write, then chmod, then rename-back) only
// triggers one reload.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(*Config)
}

// NewWatcher starts watching path's directory (fsnotify watches the parent
// directory, not the file itself, so editors that replace-on-save — rename
// a temp file over the original — are still observed) and invokes onLoad
// with every successfully reloaded Config.
func NewWatcher(path string, onLoad func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dirOf(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{path: path, watcher: fw, onLoad: onLoad}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(ReloadWindow, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous configuration", "error", err)
		return
	}
	slog.Info("configuration reloaded", "path", w.path)
	w.onLoad(cfg)
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func dirOf(path string) string {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
