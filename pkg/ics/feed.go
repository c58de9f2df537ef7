package ics

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/interval"
)

const maxFeedBytes = 32 << 20

// Feed is a busy source backed by an .ics file or an http(s)/webcal URL.
// The feed is fetched on every call.
type Feed struct {
	Location string

	Client *http.Client
	Logger *log.Logger
	// Zone interprets all-day and floating times. Nil means time.Local.
	Zone *time.Location
	// MaxOccurrences caps the instances expanded per recurring event.
	MaxOccurrences int
}

func NewFeed(location string) *Feed {
	return &Feed{
		Location: location,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Logger:   log.Default(),
	}
}

// ListBusyPeriods returns the opaque, non-cancelled time in the feed that
// overlaps [timeMin, timeMax).
func (f *Feed) ListBusyPeriods(ctx context.Context, timeMin, timeMax time.Time) ([]interval.Interval, error) {
	body, err := f.fetch(ctx)
	if err != nil {
		return nil, err
	}
	zone := f.Zone
	if zone == nil {
		zone = time.Local
	}
	events, err := parseEvents(body, zone, f.Logger)
	if err != nil {
		return nil, fmt.Errorf("ics %s: %w: %v", f.Location, errs.ErrExternalService, err)
	}
	return expandBusy(events, timeMin, timeMax, f.MaxOccurrences, f.Logger), nil
}

func (f *Feed) fetch(ctx context.Context) ([]byte, error) {
	loc := f.Location
	if strings.HasPrefix(loc, "webcal://") {
		loc = "https://" + strings.TrimPrefix(loc, "webcal://")
	}
	if !strings.HasPrefix(loc, "http://") && !strings.HasPrefix(loc, "https://") {
		b, err := os.ReadFile(loc)
		if os.IsNotExist(err) {
			return nil, errs.NotFound("ics file", loc)
		}
		return b, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, errs.Invalid("bad ics url %q: %v", f.Location, err)
	}
	req.Header.Set("Accept", "text/calendar")
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("fetch %s: %w", redactURL(loc), errs.ErrTimeout)
		}
		return nil, fmt.Errorf("fetch %s: %w: %v", redactURL(loc), errs.ErrExternalService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errs.NotFound("ics feed", redactURL(loc))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("fetch %s: %w", redactURL(loc), errs.ErrUnauthenticated)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: %w: status %s", redactURL(loc), errs.ErrExternalService, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
}

// redactURL drops the query string, which often carries a private token.
func redactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?…"
	}
	return u
}
