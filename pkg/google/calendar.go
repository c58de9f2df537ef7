package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/interval"
	"github.com/harrisonrobin/timebox/pkg/model"
)

// CalendarClient books and inspects sessions on one Google calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
}

// NewCalendarClient wraps an authenticated service bound to calendarID.
func NewCalendarClient(srv *calendar.Service, calendarID string) *CalendarClient {
	return &CalendarClient{srv: srv, calendarID: calendarID}
}

// CalendarID returns the resolved calendar identifier.
func (c *CalendarClient) CalendarID() string {
	return c.calendarID
}

// ListBusyPeriods queries free/busy information for the calendar.
func (c *CalendarClient) ListBusyPeriods(ctx context.Context, timeMin, timeMax time.Time) ([]interval.Interval, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: c.calendarID}},
	}
	resp, err := c.srv.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, classify("query free/busy", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, fmt.Errorf("free/busy response has no entry for %s: %w", c.calendarID, errs.ErrExternalService)
	}
	for _, e := range cal.Errors {
		if e.Reason == "notFound" {
			return nil, fmt.Errorf("calendar %s: %w", c.calendarID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("calendar %s: %s: %w", c.calendarID, e.Reason, errs.ErrExternalService)
	}

	busy := make([]interval.Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", p.Start, errs.ErrExternalService)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", p.End, errs.ErrExternalService)
		}
		busy = append(busy, interval.New(start, end))
	}
	return busy, nil
}

// CreateEvent inserts the session's event and returns its id.
func (c *CalendarClient) CreateEvent(ctx context.Context, ev model.CalendarEvent) (string, error) {
	created, err := c.srv.Events.Insert(c.calendarID, ConvertSessionToEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", classify("insert event", err)
	}
	return created.Id, nil
}

// DeleteEvent deletes an event from the calendar.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	return classify("delete event "+eventID, err)
}

// EventExists reports whether the event is still live. Deleted and cancelled
// events both count as gone.
func (c *CalendarClient) EventExists(ctx context.Context, eventID string) (bool, error) {
	event, err := c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		err = classify("get event "+eventID, err)
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return event.Status != "cancelled", nil
}
