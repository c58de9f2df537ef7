package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New returns the interval [start, end).
func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Valid reports whether the interval is non-empty.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Duration is the exact length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Minutes reports the duration rounded to the nearest whole minute.
func (i Interval) Minutes() int {
	return int(i.Duration().Round(time.Minute) / time.Minute)
}

// WholeMinutes reports the duration truncated to whole minutes, i.e. the
// amount of time that can actually be booked inside the interval.
func (i Interval) WholeMinutes() int {
	return int(i.Duration() / time.Minute)
}

// Contains reports whether t falls inside [Start, End).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Overlaps reports whether a and b share any instant. Touching intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Clamp trims a to bounds. ok is false when nothing of a lies within bounds.
func Clamp(a, bounds Interval) (Interval, bool) {
	out := a
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out, out.Valid()
}

// Subtract removes every busy interval from a. The result is sorted by start,
// never contains zero-length intervals and never overlaps itself.
func Subtract(a Interval, busy []Interval) []Interval {
	if !a.Valid() {
		return nil
	}

	clamped := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if c, ok := Clamp(b, a); ok {
			clamped = append(clamped, c)
		}
	}
	SortByStart(clamped)

	var free []Interval
	cursor := a.Start
	for _, b := range clamped {
		if cursor.Before(b.Start) {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(a.End) {
		free = append(free, Interval{Start: cursor, End: a.End})
	}
	return free
}

// SortByStart orders intervals by start, then by end.
func SortByStart(list []Interval) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Start.Equal(list[j].Start) {
			return list[i].End.Before(list[j].End)
		}
		return list[i].Start.Before(list[j].Start)
	})
}

// TruncateMinute drops seconds and below, keeping t's location.
func TruncateMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// CeilMinute rounds t up to the next minute boundary unless it already sits on one.
func CeilMinute(t time.Time) time.Time {
	tr := TruncateMinute(t)
	if tr.Equal(t) {
		return tr
	}
	return tr.Add(time.Minute)
}
