// Package ics reads iCalendar feeds as a read-only source of busy time.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// busyEvent is the part of a VEVENT that matters for availability.
type busyEvent struct {
	UID    string
	Start  time.Time
	End    time.Time
	AllDay bool

	RRule      string
	ExDates    []time.Time
	Recurrence *time.Time

	// Free reports TRANSP:TRANSPARENT or STATUS:CANCELLED.
	Free bool
}

// parseEvents decodes body and keeps one busyEvent per VEVENT. Date-only
// values are read in loc. Broken events are logged and skipped.
func parseEvents(body []byte, loc *time.Location, logger *log.Logger) ([]busyEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]busyEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			logger.Printf("skipping event: %v", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (busyEvent, error) {
	var out busyEvent
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("event %q has no DTSTART", out.UID)
	}
	out.AllDay = isDateOnly(dtStart)

	if out.AllDay {
		start, err := parseICSTime(dtStart.Value, propLocation(dtStart, loc))
		if err != nil {
			return out, fmt.Errorf("event %q: %w", out.UID, err)
		}
		out.Start = start
		out.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseICSTime(dtEnd.Value, propLocation(dtEnd, loc)); err == nil && end.After(start) {
				out.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, fmt.Errorf("event %q: bad DTSTART: %w", out.UID, err)
		}
		out.Start = start
		end, err := ve.GetEndAt()
		if err != nil {
			// Without DTEND the event is instantaneous and blocks nothing.
			end = start
		}
		out.End = end
	}

	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT") {
		out.Free = true
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED") {
		out.Free = true
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		exLoc := propLocation(p, out.Start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, exLoc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, propLocation(p, out.Start.Location())); err == nil {
			out.Recurrence = &t
		}
	}
	return out, nil
}

func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// propLocation resolves a TZID parameter, falling back to def.
func propLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return def
}

// parseICSTime parses DATE and DATE-TIME values. Floating values use loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
