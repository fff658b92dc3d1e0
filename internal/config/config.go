// Package config persists the command line tool's remembered paths as a
// flat TOML table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	// KeyLastKeyPath is the key file used by the last successful command
	KeyLastKeyPath = "lastKeyPath"

	containerKeyPrefix = "lastContainerPath_"
)

// Store is a string map backed by a TOML file
type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// DefaultPath returns <user config dir>/cryptvault/config.toml
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "cryptvault", "config.toml"), nil
}

// Load reads the store at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]string)}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s.values); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return s, nil
}

// Path returns the file backing the store
func (s *Store) Path() string {
	return s.path
}

// Get returns the value for key, or "" if unset
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores value under key. An empty value removes the key.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.values, key)
		return
	}
	s.values[key] = value
}

// LastKeyPath returns the remembered key file
func (s *Store) LastKeyPath() string {
	return s.Get(KeyLastKeyPath)
}

// SetLastKeyPath remembers the key file
func (s *Store) SetLastKeyPath(path string) {
	s.Set(KeyLastKeyPath, path)
}

// LastContainerPath returns the container the user last worked on
func (s *Store) LastContainerPath(username string) string {
	return s.Get(containerKeyPrefix + username)
}

// SetLastContainerPath remembers the container the user last worked on
func (s *Store) SetLastContainerPath(username, path string) {
	s.Set(containerKeyPrefix+username, path)
}

// Save writes the store, creating its directory if needed. The file is
// replaced by rename so a crash never leaves it half written.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(s.values); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
