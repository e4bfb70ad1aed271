package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mcqq/pkg/logger"
)

const debounceDelay = 200 * time.Millisecond

// Watcher reloads a Manager when its config file changes on disk.
type Watcher struct {
	m       *Manager
	watcher *fsnotify.Watcher
	file    string
	stopCh  chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	started bool
}

// NewWatcher watches the directory holding m's config file. Editors often
// replace files by rename, so the directory is watched rather than the file.
func NewWatcher(m *Manager) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	file := filepath.Clean(m.Path())
	if err := w.Add(filepath.Dir(file)); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{
		m:       m,
		watcher: w,
		file:    file,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins processing file system events.
func (w *Watcher) Start() {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

// schedule collapses bursts of events into one reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		if err := w.m.Reload(); err != nil {
			logger.Warn().Err(err).Str("path", w.file).Msg("Config reload failed, keeping previous config")
			return
		}
		logger.Info().Str("path", w.file).Msg("Config reloaded")
	})
}

// Stop stops watching and cancels a pending reload.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	started := w.started
	w.mu.Unlock()
	w.watcher.Close()
	if started {
		<-w.done
	}
}
