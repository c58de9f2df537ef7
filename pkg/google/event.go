package google

import (
	"regexp"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/timebox/pkg/model"
)

const (
	// SessionColorID is the "Blueberry" entry of the Calendar event palette.
	SessionColorID = "9"

	TaskIDProperty    = "timebox_task_id"
	SessionIDProperty = "timebox_session_id"
)

var taskIDPattern = regexp.MustCompile(`Task ID: ([A-Za-z0-9\-]+)`)

// ConvertSessionToEvent builds the Calendar resource for a booked session.
func ConvertSessionToEvent(ev model.CalendarEvent) *calendar.Event {
	private := map[string]string{}
	if ev.TaskID != "" {
		private[TaskIDProperty] = ev.TaskID
	}
	if ev.SessionID != "" {
		private[SessionIDProperty] = ev.SessionID
	}

	return &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		ColorId:     SessionColorID,
		Start:       eventDateTime(ev.Interval.Start, ev.Timezone),
		End:         eventDateTime(ev.Interval.End, ev.Timezone),
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: private,
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      true,
			ForceSendFields: []string{"UseDefault"},
		},
	}
}

func eventDateTime(t time.Time, tz string) *calendar.EventDateTime {
	dt := &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
	if tz != "" && tz != "Local" {
		dt.TimeZone = tz
	}
	return dt
}

// TaskIDFromEvent recovers the owning task of an event, preferring the
// private extended property and falling back to the description line.
func TaskIDFromEvent(event *calendar.Event) (string, bool) {
	if event == nil {
		return "", false
	}
	if event.ExtendedProperties != nil {
		if id := event.ExtendedProperties.Private[TaskIDProperty]; id != "" {
			return id, true
		}
	}
	matches := taskIDPattern.FindStringSubmatch(event.Description)
	if len(matches) > 1 {
		return matches[1], true
	}
	return "", false
}
