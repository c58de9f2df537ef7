package google

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/timebox/pkg/errs"
)

// Scopes are the OAuth scopes the calendar client needs.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// NewClient creates a calendar client over an authenticated HTTP client.
// calendarName is matched against calendar summaries and ids; "primary" is
// used as-is.
func NewClient(ctx context.Context, httpClient *http.Client, calendarName string, opts ...option.ClientOption) (*CalendarClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}

	calendarID, err := resolveCalendarID(ctx, srv, calendarName)
	if err != nil {
		return nil, err
	}
	return NewCalendarClient(srv, calendarID), nil
}

func resolveCalendarID(ctx context.Context, srv *calendar.Service, name string) (string, error) {
	if name == "" || name == "primary" {
		return "primary", nil
	}

	var calendarID string
	err := srv.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			if calendarID != "" {
				break
			}
			if item.Summary == name || item.Id == name {
				calendarID = item.Id
			}
		}
		return nil
	})
	if err != nil {
		return "", classify("list calendars", err)
	}
	if calendarID == "" {
		return "", errs.NotFound("calendar", name)
	}
	return calendarID, nil
}
