package ics

import (
	"log"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/harrisonrobin/timebox/pkg/interval"
)

const defaultMaxOccurrences = 5000

// expandBusy turns parsed events into the busy intervals overlapping
// [timeMin, timeMax). Recurring events are expanded with their EXDATEs and
// RECURRENCE-ID overrides; free events contribute nothing.
func expandBusy(events []busyEvent, timeMin, timeMax time.Time, maxOccurrences int, logger *log.Logger) []interval.Interval {
	if maxOccurrences <= 0 {
		maxOccurrences = defaultMaxOccurrences
	}
	window := interval.New(timeMin, timeMax)

	bases := make(map[string][]busyEvent)
	overrides := make(map[string][]busyEvent)
	var order []string
	for _, ev := range events {
		if ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	var busy []interval.Interval
	add := func(ev busyEvent, start, end time.Time) {
		if ev.Free {
			return
		}
		iv := interval.New(start, end)
		if iv.Valid() && iv.Duration() > 0 && interval.Overlaps(iv, window) {
			busy = append(busy, iv)
		}
	}

	for _, uid := range order {
		ovs := overrides[uid]
		for _, ev := range bases[uid] {
			if ev.RRule == "" {
				add(ev, ev.Start, ev.End)
				continue
			}

			starts, err := occurrences(ev, timeMin, timeMax, maxOccurrences)
			if err != nil {
				logger.Printf("event %q: cannot expand RRULE %q: %v", uid, ev.RRule, err)
				continue
			}
			length := ev.End.Sub(ev.Start)
			for _, start := range starts {
				if ov, ok := findOverride(ovs, start); ok {
					add(ov, ov.Start, ov.End)
					continue
				}
				add(ev, start, start.Add(length))
			}
		}
		delete(overrides, uid)
	}

	// Overrides whose series is absent still describe real time.
	for _, ovs := range overrides {
		for _, ov := range ovs {
			add(ov, ov.Start, ov.End)
		}
	}

	interval.SortByStart(busy)
	return busy
}

func occurrences(ev busyEvent, timeMin, timeMax time.Time, maxOccurrences int) ([]time.Time, error) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Instances starting up to one event-length before timeMin still overlap it.
	loc := ev.Start.Location()
	from := timeMin.Add(-ev.End.Sub(ev.Start)).In(loc)
	starts := set.Between(from, timeMax.In(loc), true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}
	return starts, nil
}

func findOverride(overrides []busyEvent, start time.Time) (busyEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return busyEvent{}, false
}
