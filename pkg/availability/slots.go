package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/interval"
)

// Slot is a free interval available for booking. Its ID is unique within a
// single computation only.
type Slot struct {
	ID          string    `json:"id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Minutes     int       `json:"duration"`
	Date        string    `json:"date"`
	DisplayDate string    `json:"displayDate"`
	DisplayTime string    `json:"displayTime"`
}

// Interval returns the slot's time range.
func (s Slot) Interval() interval.Interval {
	return interval.New(s.Start, s.End)
}

// DateRange selects calendar days; both ends are inclusive and are resolved
// to days in the policy's timezone.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns a range covering n days starting at from's calendar day.
func Days(from time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	return DateRange{Start: from, End: from.AddDate(0, 0, n-1)}
}

// FindAvailableSlots computes free slots of at least minMinutes inside the
// working window of every day in r, skipping time before now. Slots come back
// in chronological order across the whole range.
func FindAvailableSlots(busy []interval.Interval, p Policy, r DateRange, minMinutes int, now time.Time) ([]Slot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if r.End.Before(r.Start) {
		return nil, errs.Invalid("date range ends before it starts")
	}
	if minMinutes <= 0 {
		minMinutes = DefaultMinSessionMinutes
	}
	minGap := time.Duration(minMinutes) * time.Minute
	loc := p.Location

	first := r.Start.In(loc)
	last := r.End.In(loc)
	lastDay := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, loc)

	var slots []Slot
	for day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc); !day.After(lastDay); day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc) {
		dayStart := p.WorkStart.On(day.Year(), day.Month(), day.Day(), loc)
		dayEnd := p.WorkEnd.On(day.Year(), day.Month(), day.Day(), loc)

		effectiveStart := dayStart
		if nowMin := interval.CeilMinute(now.In(loc)); nowMin.After(effectiveStart) {
			effectiveStart = nowMin
		}
		if !effectiveStart.Before(dayEnd) {
			continue
		}
		window := interval.New(effectiveStart, dayEnd)

		dayBusy := make([]interval.Interval, 0)
		for _, b := range busy {
			if b.Valid() && interval.Overlaps(b, window) {
				dayBusy = append(dayBusy, b)
			}
		}
		interval.SortByStart(dayBusy)

		cursor := effectiveStart
		for _, b := range dayBusy {
			if cursor.Before(b.Start) && b.Start.Sub(cursor) >= minGap {
				slots = append(slots, newSlot(day, cursor, b.Start))
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
		}
		if cursor.Before(dayEnd) && dayEnd.Sub(cursor) >= minGap {
			slots = append(slots, newSlot(day, cursor, dayEnd))
		}
	}
	return slots, nil
}

func newSlot(day, start, end time.Time) Slot {
	loc := day.Location()
	s, e := start.In(loc), end.In(loc)
	return Slot{
		ID:          uuid.NewString(),
		Start:       s,
		End:         e,
		Minutes:     interval.New(s, e).Minutes(),
		Date:        day.Format("2006-01-02"),
		DisplayDate: day.Format("Mon, Jan 2"),
		DisplayTime: s.Format("3:04 PM") + " - " + e.Format("3:04 PM"),
	}
}
