package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store persists Settings as a single YAML record. Reads and writes are
// all-or-nothing: a record is either fully valid or replaced by Factory().
type Store struct {
	mu       sync.RWMutex
	path     string
	current  Settings
	replaced bool
}

// NewStore creates a store backed by path. Call Load before Current.
func NewStore(path string) *Store {
	return &Store{path: path, current: Factory()}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the record. A missing, unreadable, mis-versioned or out-of-range
// record is replaced by factory settings, which are written back immediately.
// The returned error only reports a failure to write those defaults; the
// returned Settings are always usable.
func (s *Store) Load() (Settings, error) {
	loaded, reason := s.read()

	s.mu.Lock()
	defer s.mu.Unlock()

	if reason == "" {
		s.current = loaded
		s.replaced = false
		log.Printf("[config] loaded settings from %s", s.path)
		return s.current, nil
	}

	log.Printf("[config] %s: %s, restoring factory settings", s.path, reason)
	s.current = Factory()
	s.replaced = true
	if err := s.write(s.current); err != nil {
		return s.current, fmt.Errorf("save factory settings: %w", err)
	}
	return s.current, nil
}

func (s *Store) read() (Settings, string) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, fmt.Sprintf("read failed (%v)", err)
	}
	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Settings{}, fmt.Sprintf("parse failed (%v)", err)
	}
	if err := loaded.Validate(); err != nil {
		return Settings{}, err.Error()
	}
	return loaded, ""
}

// Replaced reports whether the last Load fell back to factory settings.
func (s *Store) Replaced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replaced
}

// Current returns the settings in force.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save validates and persists a complete record.
func (s *Store) Save(settings Settings) error {
	if settings.Version == "" {
		settings.Version = Version
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(settings); err != nil {
		return err
	}
	s.current = settings
	return nil
}

// write replaces the file atomically via a temp file and rename.
func (s *Store) write(settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename settings: %w", err)
	}
	return nil
}
