package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay coalesces the bursts of events editors produce on save.
const reloadDelay = 100 * time.Millisecond

// Watcher reloads the configuration when one of its source files changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	load     func() (*Config, error)
	onChange func(*Config)
	log      zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

// NewWatcher watches files and calls onChange with the result of load after
// any of them is written, created or replaced. Load errors are logged and
// the previous configuration stays in effect.
func NewWatcher(files []string, load func() (*Config, error), onChange func(*Config), logger zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directories so replaced files keep being seen.
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
		dirs[dir] = true
	}
	logger.Info().Strs("files", files).Msg("Config watcher initialized")

	return &Watcher{
		watcher:  w,
		files:    watched,
		load:     load,
		onChange: onChange,
		log:      logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var pending <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			pending = time.After(reloadDelay)
		case <-pending:
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to reload config, keeping the previous one")
		return
	}
	w.log.Info().Strs("sources", cfg.Sources).Msg("Config reloaded")
	w.onChange(cfg)
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
