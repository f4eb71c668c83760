// Package settingsstore persists per-user settings (theme preference, sound
// URLs, and similar small KV data) to a single JSON file on disk, watched
// with fsnotify so an operator hand-editing the file sees changes picked up
// without a restart.
package settingsstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceDelay coalesces rapid successive writes to the backing file (an
// editor's save-as-temp-then-rename, for instance) into one reload.
const debounceDelay = 250 * time.Millisecond

// Entry is one user's stored settings.
type Entry struct {
	Theme    string            `json:"theme,omitempty"`
	Timezone string            `json:"timezone,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Store is a file-backed KV store of per-user settings, hot-reloaded on
// external changes to its backing file.
type Store struct {
	path string
	log  zerolog.Logger

	mu      sync.RWMutex
	entries map[string]Entry

	watcher  *fsnotify.Watcher
	debounce *time.Timer
	done     chan struct{}
}

// Open loads path (creating an empty store file if it doesn't exist yet)
// and starts watching it for external changes.
func Open(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		path:    path,
		log:     log.With().Str("component", "settingsstore").Logger(),
		entries: make(map[string]Entry),
		done:    make(chan struct{}),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	s.watcher = w
	go s.watchLoop()

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

func (s *Store) persistLocked() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *Store) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.scheduleReload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("settings file watch error")
		}
	}
}

func (s *Store) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Reset(debounceDelay)
		return
	}
	s.debounce = time.AfterFunc(debounceDelay, func() {
		s.mu.Lock()
		s.debounce = nil
		s.mu.Unlock()
		if err := s.load(); err != nil {
			s.log.Warn().Err(err).Msg("failed to reload settings file")
		} else {
			s.log.Info().Msg("settings file reloaded")
		}
	})
}

// Get returns userID's stored settings, or the zero Entry if none exist.
func (s *Store) Get(userID string) Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[userID]
}

// Set updates userID's settings and persists the whole store to disk.
func (s *Store) Set(userID string, e Entry) error {
	s.mu.Lock()
	s.entries[userID] = e
	s.mu.Unlock()
	return s.persistLocked()
}

// Close stops the file watcher.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
