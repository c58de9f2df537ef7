package google

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/timebox/pkg/interval"
	"github.com/harrisonrobin/timebox/pkg/model"
)

func TestConvertSessionToEvent(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)

	event := ConvertSessionToEvent(model.CalendarEvent{
		Summary:     "write report",
		Description: "Scheduled task session\nTask ID: task-1",
		Interval:    interval.New(start, start.Add(90*time.Minute)),
		Timezone:    "America/New_York",
		TaskID:      "task-1",
		SessionID:   "s-1",
	})

	assert.Equal(t, "write report", event.Summary)
	assert.Equal(t, "9", event.ColorId)
	assert.Equal(t, "2025-03-10T09:00:00-04:00", event.Start.DateTime)
	assert.Equal(t, "2025-03-10T10:30:00-04:00", event.End.DateTime)
	assert.Equal(t, "America/New_York", event.Start.TimeZone)
	assert.Equal(t, map[string]string{
		TaskIDProperty:    "task-1",
		SessionIDProperty: "s-1",
	}, event.ExtendedProperties.Private)
}

func TestConvertSessionToEventLocalZone(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	event := ConvertSessionToEvent(model.CalendarEvent{
		Summary:  "x",
		Interval: interval.New(start, start.Add(time.Hour)),
		Timezone: "Local",
	})
	assert.Empty(t, event.Start.TimeZone)
	assert.Empty(t, event.ExtendedProperties.Private)
}

func TestTaskIDFromEvent(t *testing.T) {
	tests := []struct {
		name  string
		event *calendar.Event
		want  string
		found bool
	}{
		{"nil", nil, "", false},
		{
			"extended property",
			&calendar.Event{ExtendedProperties: &calendar.EventExtendedProperties{Private: map[string]string{TaskIDProperty: "abc-123"}}},
			"abc-123", true,
		},
		{
			"description fallback",
			&calendar.Event{Description: "Scheduled task session\nTask ID: 0f8e-44"},
			"0f8e-44", true,
		},
		{"unrelated", &calendar.Event{Description: "standup"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TaskIDFromEvent(tt.event)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
