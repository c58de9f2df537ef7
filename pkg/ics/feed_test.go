package ics

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/interval"
)

const sample = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//timebox//test//EN
BEGIN:VEVENT
UID:standup@test
DTSTAMP:20250301T000000Z
DTSTART:20250303T090000Z
DTEND:20250303T091500Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20250305T090000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup@test
DTSTAMP:20250301T000000Z
RECURRENCE-ID:20250306T090000Z
DTSTART:20250306T100000Z
DTEND:20250306T101500Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:lunch@test
DTSTAMP:20250301T000000Z
DTSTART:20250304T120000Z
DTEND:20250304T130000Z
SUMMARY:Lunch
END:VEVENT
BEGIN:VEVENT
UID:reminder@test
DTSTAMP:20250301T000000Z
DTSTART:20250304T140000Z
DTEND:20250304T150000Z
TRANSP:TRANSPARENT
SUMMARY:Reminder
END:VEVENT
BEGIN:VEVENT
UID:cancelled@test
DTSTAMP:20250301T000000Z
DTSTART:20250304T150000Z
DTEND:20250304T160000Z
STATUS:CANCELLED
SUMMARY:Cancelled
END:VEVENT
BEGIN:VEVENT
UID:offsite@test
DTSTAMP:20250301T000000Z
DTSTART;VALUE=DATE:20250307
DTEND;VALUE=DATE:20250308
SUMMARY:Offsite
END:VEVENT
END:VCALENDAR
`

func utc(day, hour, min int) time.Time {
	return time.Date(2025, 3, day, hour, min, 0, 0, time.UTC)
}

func testFeed(location string) *Feed {
	f := NewFeed(location)
	f.Logger = log.New(io.Discard, "", 0)
	f.Zone = time.UTC
	return f
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "work.ics")
	body := strings.ReplaceAll(sample, "\n", "\r\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestFeedBusyPeriods(t *testing.T) {
	f := testFeed(writeSample(t))

	busy, err := f.ListBusyPeriods(context.Background(), utc(1, 0, 0), utc(10, 0, 0))
	require.NoError(t, err)

	want := []interval.Interval{
		interval.New(utc(3, 9, 0), utc(3, 9, 15)),
		interval.New(utc(4, 9, 0), utc(4, 9, 15)),
		interval.New(utc(4, 12, 0), utc(4, 13, 0)),
		interval.New(utc(6, 10, 0), utc(6, 10, 15)),
		interval.New(utc(7, 0, 0), utc(8, 0, 0)),
		interval.New(utc(7, 9, 0), utc(7, 9, 15)),
	}
	require.Len(t, busy, len(want))
	for i := range want {
		assert.True(t, want[i].Start.Equal(busy[i].Start), "start %d: want %s got %s", i, want[i].Start, busy[i].Start)
		assert.True(t, want[i].End.Equal(busy[i].End), "end %d: want %s got %s", i, want[i].End, busy[i].End)
	}
}

func TestFeedBusyPeriodsWindow(t *testing.T) {
	f := testFeed(writeSample(t))

	busy, err := f.ListBusyPeriods(context.Background(), utc(4, 9, 10), utc(4, 12, 30))
	require.NoError(t, err)
	require.Len(t, busy, 2)
	assert.True(t, busy[0].Start.Equal(utc(4, 9, 0)), "an instance overlapping the window start is kept")
	assert.True(t, busy[1].Start.Equal(utc(4, 12, 0)))
}

func TestFeedOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cal.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = io.WriteString(w, strings.ReplaceAll(sample, "\n", "\r\n"))
	}))
	defer ts.Close()

	f := testFeed(ts.URL + "/cal.ics?token=secret")
	f.Client = ts.Client()
	busy, err := f.ListBusyPeriods(context.Background(), utc(4, 0, 0), utc(5, 0, 0))
	require.NoError(t, err)
	assert.Len(t, busy, 2)

	missing := testFeed(ts.URL + "/missing.ics?token=secret")
	missing.Client = ts.Client()
	_, err = missing.ListBusyPeriods(context.Background(), utc(4, 0, 0), utc(5, 0, 0))
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NotContains(t, err.Error(), "secret")
}

func TestFeedMissingFile(t *testing.T) {
	f := testFeed(filepath.Join(t.TempDir(), "none.ics"))
	_, err := f.ListBusyPeriods(context.Background(), utc(1, 0, 0), utc(2, 0, 0))
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFeedGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ics")
	require.NoError(t, os.WriteFile(path, nil, 0600))
	_, err := testFeed(path).ListBusyPeriods(context.Background(), utc(1, 0, 0), utc(2, 0, 0))
	assert.ErrorIs(t, err, errs.ErrExternalService)
}

func TestParseICSTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	got, err := parseICSTime("20250310T090000", ny)
	require.NoError(t, err)
	assert.Equal(t, ny, got.Location())
	assert.Equal(t, 9, got.Hour())

	got, err = parseICSTime("20250310T090000Z", ny)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())

	got, err = parseICSTime("20250310", ny)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Hour())

	_, err = parseICSTime("", ny)
	assert.Error(t, err)
}
