package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings are the user-changeable options persisted between runs.
type Settings struct {
	Mode            string       `yaml:"mode"`
	AllowFractional bool         `yaml:"allow_fractional"`
	Auto            AutoSettings `yaml:"auto"`
}

// AutoSettings control the strategy runner.
type AutoSettings struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Strategy        string `yaml:"strategy"`
}

// SettingsStore holds the current Settings in memory and writes every change
// back to a YAML file.
type SettingsStore struct {
	mu   sync.RWMutex
	path string
	cur  Settings
}

// DefaultSettings derives initial settings from cfg.
func DefaultSettings(cfg *Config) Settings {
	return Settings{
		Mode:            cfg.Trading.Mode,
		AllowFractional: cfg.Trading.AllowFractional,
		Auto: AutoSettings{
			Enabled:         cfg.Auto.Enabled,
			IntervalSeconds: cfg.Auto.IntervalSeconds,
			Strategy:        cfg.Auto.Strategy,
		},
	}
}

// OpenSettings loads settings from path. A missing file is created from
// defaults.
func OpenSettings(path string, defaults Settings) (*SettingsStore, error) {
	s := &SettingsStore{path: path, cur: defaults}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.cur); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if s.cur.Auto.IntervalSeconds <= 0 {
		s.cur.Auto.IntervalSeconds = defaults.Auto.IntervalSeconds
	}
	return s, nil
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to the settings and persists the result. On a write
// failure the in-memory settings are left unchanged.
func (s *SettingsStore) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cur
	fn(&s.cur)
	if err := s.save(); err != nil {
		s.cur = prev
		return err
	}
	return nil
}

// save writes the settings atomically. Caller holds mu or owns s.
func (s *SettingsStore) save() error {
	data, err := yaml.Marshal(s.cur)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return os.Rename(tmp, s.path)
}
