// Package config loads and saves the timebox configuration file and exposes
// the working-hours preferences to the scheduler.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/timebox/pkg/availability"
	"github.com/harrisonrobin/timebox/pkg/errs"
)

const (
	xdgAppName = "timebox"
	configFile = "config.yaml"
	envPrefix  = "TIMEBOX"
)

// Storage backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

type Config struct {
	Calendar  CalendarConfig  `yaml:"calendar" mapstructure:"calendar"`
	Hours     HoursConfig     `yaml:"hours" mapstructure:"hours"`
	Sessions  SessionsConfig  `yaml:"sessions" mapstructure:"sessions"`
	Planning  PlanningConfig  `yaml:"planning" mapstructure:"planning"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
}

// CalendarConfig selects the Google calendar and the stored credential.
type CalendarConfig struct {
	Name    string        `yaml:"name" mapstructure:"name"`
	Profile string        `yaml:"profile" mapstructure:"profile"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// ICSFeeds are extra read-only busy sources (files or URLs).
	ICSFeeds []string `yaml:"ics_feeds,omitempty" mapstructure:"ics_feeds"`
}

type HoursConfig struct {
	Start    string `yaml:"start" mapstructure:"start"`
	End      string `yaml:"end" mapstructure:"end"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

type SessionsConfig struct {
	DefaultMinutes int `yaml:"default_minutes" mapstructure:"default_minutes"`
	MaxMinutes     int `yaml:"max_minutes" mapstructure:"max_minutes"`
	MinMinutes     int `yaml:"min_minutes" mapstructure:"min_minutes"`
}

type PlanningConfig struct {
	HorizonDays int `yaml:"horizon_days" mapstructure:"horizon_days"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

type ReconcileConfig struct {
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

// Dir returns ~/.config/timebox.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

// GetConfigPath returns the path of config.yaml inside Dir.
func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// DefaultConfig returns the built-in settings, keeping data under dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		Calendar: CalendarConfig{
			Name:    "primary",
			Profile: "default",
			Timeout: 15 * time.Second,
		},
		Hours: HoursConfig{Start: "09:00", End: "17:00", Timezone: "Local"},
		Sessions: SessionsConfig{
			DefaultMinutes: 120,
			MaxMinutes:     120,
			MinMinutes:     availability.DefaultMinSessionMinutes,
		},
		Planning:  PlanningConfig{HorizonDays: 14},
		Storage:   StorageConfig{Backend: StoreFile, DataDir: dir},
		Reconcile: ReconcileConfig{Schedule: "*/15 * * * *"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Any key can be overridden from the environment, e.g. TIMEBOX_HOURS_START.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig(filepath.Dir(path))

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range flatten(cfg) {
		v.SetDefault(key, value)
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Normalize(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, replacing the file atomically.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize(dir string) {
	def := DefaultConfig(dir)
	if c.Calendar.Name == "" {
		c.Calendar.Name = def.Calendar.Name
	}
	if c.Calendar.Profile == "" {
		c.Calendar.Profile = def.Calendar.Profile
	}
	if c.Calendar.Timeout <= 0 {
		c.Calendar.Timeout = def.Calendar.Timeout
	}
	if c.Hours.Start == "" {
		c.Hours.Start = def.Hours.Start
	}
	if c.Hours.End == "" {
		c.Hours.End = def.Hours.End
	}
	if c.Hours.Timezone == "" {
		c.Hours.Timezone = def.Hours.Timezone
	}
	if c.Sessions.DefaultMinutes == 0 {
		c.Sessions.DefaultMinutes = def.Sessions.DefaultMinutes
	}
	if c.Sessions.MaxMinutes == 0 {
		c.Sessions.MaxMinutes = def.Sessions.MaxMinutes
	}
	if c.Sessions.MinMinutes == 0 {
		c.Sessions.MinMinutes = def.Sessions.MinMinutes
	}
	if c.Planning.HorizonDays <= 0 {
		c.Planning.HorizonDays = def.Planning.HorizonDays
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = def.Storage.DataDir
	}
	if c.Reconcile.Schedule == "" {
		c.Reconcile.Schedule = def.Reconcile.Schedule
	}
}

// Validate checks everything that does not need the network.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case StoreFile, StoreSQLite:
	default:
		return errs.Invalid("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// Policy builds the working-hours policy described by the config.
func (c *Config) Policy() (availability.Policy, error) {
	p, err := availability.NewPolicy(c.Hours.Start, c.Hours.End, c.Hours.Timezone)
	if err != nil {
		return availability.Policy{}, err
	}
	p.DefaultSessionMinutes = c.Sessions.DefaultMinutes
	p.MaxSessionMinutes = c.Sessions.MaxMinutes
	p.MinSessionMinutes = c.Sessions.MinMinutes
	if err := p.Validate(); err != nil {
		return availability.Policy{}, err
	}
	return p, nil
}

// Keys lists the settings accepted by Set.
var Keys = []string{
	"calendar.name", "calendar.profile", "calendar.timeout",
	"hours.start", "hours.end", "hours.timezone",
	"sessions.default_minutes", "sessions.max_minutes", "sessions.min_minutes",
	"planning.horizon_days",
	"storage.backend", "storage.data_dir",
	"reconcile.schedule",
}

// Set updates one setting by its dotted key and validates the result.
func (c *Config) Set(key, value string) error {
	next := *c
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, errs.Invalid("%s must be a whole number of minutes, got %q", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "calendar.name":
		next.Calendar.Name = value
	case "calendar.profile":
		next.Calendar.Profile = value
	case "calendar.timeout":
		next.Calendar.Timeout, err = time.ParseDuration(value)
		if err == nil && next.Calendar.Timeout <= 0 {
			err = errs.Invalid("calendar.timeout must be positive")
		}
	case "hours.start":
		next.Hours.Start = value
	case "hours.end":
		next.Hours.End = value
	case "hours.timezone":
		next.Hours.Timezone = value
	case "sessions.default_minutes":
		next.Sessions.DefaultMinutes, err = atoi()
	case "sessions.max_minutes":
		next.Sessions.MaxMinutes, err = atoi()
	case "sessions.min_minutes":
		next.Sessions.MinMinutes, err = atoi()
	case "planning.horizon_days":
		next.Planning.HorizonDays, err = strconv.Atoi(value)
		if err == nil && next.Planning.HorizonDays <= 0 {
			err = errs.Invalid("planning.horizon_days must be positive")
		}
	case "storage.backend":
		next.Storage.Backend = value
	case "storage.data_dir":
		next.Storage.DataDir = value
	case "reconcile.schedule":
		next.Reconcile.Schedule = value
	default:
		return errs.Invalid("unknown setting %q (known: %s)", key, strings.Join(Keys, ", "))
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrInvalidInput, key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func flatten(c *Config) map[string]any {
	return map[string]any{
		"calendar.name":            c.Calendar.Name,
		"calendar.profile":         c.Calendar.Profile,
		"calendar.timeout":         c.Calendar.Timeout,
		"calendar.ics_feeds":       c.Calendar.ICSFeeds,
		"hours.start":              c.Hours.Start,
		"hours.end":                c.Hours.End,
		"hours.timezone":           c.Hours.Timezone,
		"sessions.default_minutes": c.Sessions.DefaultMinutes,
		"sessions.max_minutes":     c.Sessions.MaxMinutes,
		"sessions.min_minutes":     c.Sessions.MinMinutes,
		"planning.horizon_days":    c.Planning.HorizonDays,
		"storage.backend":          c.Storage.Backend,
		"storage.data_dir":         c.Storage.DataDir,
		"reconcile.schedule":       c.Reconcile.Schedule,
	}
}
