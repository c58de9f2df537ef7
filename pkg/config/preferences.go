package config

import (
	"context"
	"sync"

	"github.com/harrisonrobin/timebox/pkg/availability"
)

// PreferencesStore serves the working-hours policy from the config file,
// re-reading it on every call so `prefs set` takes effect immediately.
type PreferencesStore struct {
	Path string

	mu sync.Mutex
}

func NewPreferencesStore(path string) *PreferencesStore {
	return &PreferencesStore{Path: path}
}

func (p *PreferencesStore) WorkingHoursPolicy(_ context.Context) (availability.Policy, error) {
	cfg, err := p.Load()
	if err != nil {
		return availability.Policy{}, err
	}
	return cfg.Policy()
}

// Load reads the current configuration.
func (p *PreferencesStore) Load() (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Load(p.Path)
}

// Update applies key=value to the stored configuration and saves it.
func (p *PreferencesStore) Update(key, value string) (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg, err := Load(p.Path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Set(key, value); err != nil {
		return nil, err
	}
	if err := Save(p.Path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
