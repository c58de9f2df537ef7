package model

import "github.com/harrisonrobin/timebox/pkg/interval"

// CalendarEvent describes the event requested from the calendar for one session.
type CalendarEvent struct {
	Summary     string
	Description string
	Interval    interval.Interval
	Timezone    string
	TaskID      string
	SessionID   string
}
