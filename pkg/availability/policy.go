package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/model"
)

const (
	// MaxSessionMinutes is the hard ceiling for any single session (4 hours).
	MaxSessionMinutes = model.MaxSessionMinutes
	// DefaultMinSessionMinutes is the smallest session worth booking.
	DefaultMinSessionMinutes = 30
)

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses a "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, errs.Invalid("time of day %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, errs.Invalid("time of day %q has a bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, errs.Invalid("time of day %q has a bad minute", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On returns the instant at this time of day on the given calendar day in loc.
func (t TimeOfDay) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, int(t)/60, int(t)%60, 0, 0, loc)
}

// Policy is the working-hours policy: one daily window applied uniformly to
// every day, plus the session-length defaults used when booking.
type Policy struct {
	WorkStart TimeOfDay
	WorkEnd   TimeOfDay
	Location  *time.Location

	DefaultSessionMinutes int
	MaxSessionMinutes     int
	MinSessionMinutes     int
}

// NewPolicy builds a Policy from "HH:MM" strings and an IANA timezone name.
// An empty timezone or "Local" resolves to time.Local.
func NewPolicy(start, end, timezone string) (Policy, error) {
	ws, err := ParseTimeOfDay(start)
	if err != nil {
		return Policy{}, err
	}
	we, err := ParseTimeOfDay(end)
	if err != nil {
		return Policy{}, err
	}
	loc := time.Local
	if timezone != "" && timezone != "Local" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return Policy{}, errs.Invalid("unknown timezone %q", timezone)
		}
	}
	p := Policy{
		WorkStart:             ws,
		WorkEnd:               we,
		Location:              loc,
		DefaultSessionMinutes: 120,
		MaxSessionMinutes:     120,
		MinSessionMinutes:     DefaultMinSessionMinutes,
	}
	return p, p.Validate()
}

// Validate checks the window ordering and the session-length bounds.
func (p Policy) Validate() error {
	if p.Location == nil {
		return errs.Invalid("working hours have no timezone")
	}
	if p.WorkEnd <= p.WorkStart {
		return errs.Invalid("working hours end %s is not after start %s", p.WorkEnd, p.WorkStart)
	}
	if p.MaxSessionMinutes <= 0 || p.MaxSessionMinutes > MaxSessionMinutes {
		return errs.Invalid("maximum session length %d must be between 1 and %d minutes", p.MaxSessionMinutes, MaxSessionMinutes)
	}
	if p.DefaultSessionMinutes <= 0 || p.DefaultSessionMinutes > MaxSessionMinutes {
		return errs.Invalid("default session length %d must be between 1 and %d minutes", p.DefaultSessionMinutes, MaxSessionMinutes)
	}
	if p.MinSessionMinutes < 0 {
		return errs.Invalid("minimum session length %d is negative", p.MinSessionMinutes)
	}
	return nil
}

// MinSession returns the configured minimum session length, defaulting to 30.
func (p Policy) MinSession() int {
	if p.MinSessionMinutes <= 0 {
		return DefaultMinSessionMinutes
	}
	return p.MinSessionMinutes
}
