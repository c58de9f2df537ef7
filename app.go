package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/timebox/pkg/auth"
	"github.com/harrisonrobin/timebox/pkg/availability"
	"github.com/harrisonrobin/timebox/pkg/config"
	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/google"
	"github.com/harrisonrobin/timebox/pkg/ics"
	"github.com/harrisonrobin/timebox/pkg/scheduler"
	"github.com/harrisonrobin/timebox/pkg/store"
)

type globalOptions struct {
	configPath string
	calendar   string
	profile    string
	verbose    bool
	jsonOut    bool
}

func (o *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "config file (default ~/.config/timebox/config.yaml)")
	f.StringVar(&o.calendar, "calendar", "", "Google Calendar name to book into (overrides config)")
	f.StringVar(&o.profile, "profile", "", "credential profile (overrides config)")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output")
	f.BoolVar(&o.jsonOut, "json", false, "print results as JSON")
}

// app is the wiring shared by every command.
type app struct {
	opts      *globalOptions
	cfgPath   string
	cfg       *config.Config
	prefs     *config.PreferencesStore
	sched     *scheduler.Scheduler
	logger    *log.Logger
	out       io.Writer
	closeFunc func() error
}

func newApp(opts *globalOptions) (*app, error) {
	path := opts.configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return nil, fmt.Errorf("could not find path to configuration file: %w", err)
		}
	}
	prefs := config.NewPreferencesStore(path)
	cfg, err := prefs.Load()
	if err != nil {
		return nil, err
	}
	if opts.calendar != "" {
		cfg.Calendar.Name = opts.calendar
	}
	if opts.profile != "" {
		cfg.Calendar.Profile = opts.profile
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if !opts.verbose {
		logger.SetFlags(0)
	}

	a := &app{
		opts:    opts,
		cfgPath: path,
		cfg:     cfg,
		prefs:   prefs,
		logger:  logger,
		out:     os.Stdout,
	}

	var tasks scheduler.TaskStore
	switch cfg.Storage.Backend {
	case config.StoreSQLite:
		db, err := store.NewSQLiteStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		tasks, a.closeFunc = db, db.Close
	default:
		fs, err := store.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		tasks = fs
	}
	a.debugf("using %s store in %s", cfg.Storage.Backend, cfg.Storage.DataDir)

	a.sched = scheduler.New(tasks, prefs)
	a.sched.Timeout = cfg.Calendar.Timeout
	a.sched.Logger = logger
	return a, nil
}

func (a *app) Close() error {
	if a.closeFunc != nil {
		return a.closeFunc()
	}
	return nil
}

func (a *app) debugf(format string, args ...any) {
	if a.opts.verbose {
		a.logger.Printf(format, args...)
	}
}

func (a *app) configDir() string {
	return filepath.Dir(a.cfgPath)
}

func (a *app) tokenPath() string {
	return auth.TokenPath(a.configDir(), a.cfg.Calendar.Profile)
}

// calendar connects to Google Calendar with the stored credential.
func (a *app) calendar(ctx context.Context) (*google.CalendarClient, error) {
	oauthCfg, err := auth.GetConfig(a.configDir(), google.Scopes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthenticated, err)
	}
	httpClient, err := auth.HTTPClient(ctx, oauthCfg, a.tokenPath())
	if err != nil {
		return nil, err
	}
	cal, err := google.NewClient(ctx, httpClient, a.cfg.Calendar.Name)
	if err != nil {
		return nil, err
	}
	a.debugf("booking into calendar %s", cal.CalendarID())
	return cal, nil
}

type busyOptions struct {
	ics      []string
	noGoogle bool
}

func (b *busyOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&b.ics, "ics", nil, "extra .ics file or URL to treat as busy (repeatable)")
	cmd.Flags().BoolVar(&b.noGoogle, "no-google", false, "ignore Google Calendar, use only --ics and configured feeds")
}

// busySource combines Google Calendar with the configured and requested ICS feeds.
func (a *app) busySource(ctx context.Context, b busyOptions) (scheduler.BusySource, error) {
	var sources scheduler.BusySources
	if !b.noGoogle {
		cal, err := a.calendar(ctx)
		if err != nil {
			return nil, err
		}
		sources = append(sources, cal)
	}
	policy, err := a.cfg.Policy()
	if err != nil {
		return nil, err
	}
	for _, loc := range append(append([]string{}, a.cfg.Calendar.ICSFeeds...), b.ics...) {
		feed := ics.NewFeed(loc)
		feed.Logger = a.logger
		feed.Zone = policy.Location
		sources = append(sources, feed)
	}
	if len(sources) == 0 {
		return nil, errs.Invalid("no busy source: drop --no-google or pass --ics")
	}
	return sources, nil
}

type rangeOptions struct {
	from string
	days int
}

func (r *rangeOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.from, "from", "", "first day to search, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&r.days, "days", 0, "number of days to search (default planning.horizon_days)")
}

func (a *app) dateRange(r rangeOptions) (availability.DateRange, error) {
	policy, err := a.cfg.Policy()
	if err != nil {
		return availability.DateRange{}, err
	}
	from := time.Now().In(policy.Location)
	if r.from != "" {
		from, err = time.ParseInLocation("2006-01-02", r.from, policy.Location)
		if err != nil {
			return availability.DateRange{}, errs.Invalid("--from %q is not YYYY-MM-DD", r.from)
		}
	}
	days := r.days
	if days == 0 {
		days = a.cfg.Planning.HorizonDays
	}
	if days < 0 {
		return availability.DateRange{}, errs.Invalid("--days must be positive")
	}
	return availability.Days(from, days), nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseMinutes accepts "90", "1h30m" or "1:30".
func parseMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err1 := strconv.Atoi(h)
		mins, err2 := strconv.Atoi(m)
		if err1 == nil && err2 == nil && mins < 60 {
			return hours*60 + mins, nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d%time.Minute == 0 {
		return int(d / time.Minute), nil
	}
	return 0, errs.Invalid("%q is not a duration (try 90, 1h30m or 1:30)", s)
}

// withApp builds the app for a command and closes it afterwards.
func withApp(opts *globalOptions, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()
		a.out = cmd.OutOrStdout()
		return fn(cmd.Context(), a, args)
	}
}
