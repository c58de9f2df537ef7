package scheduler

import (
	"context"
	"time"

	"github.com/harrisonrobin/timebox/pkg/availability"
	"github.com/harrisonrobin/timebox/pkg/interval"
	"github.com/harrisonrobin/timebox/pkg/model"
)

// BusySource reports occupied time between timeMin and timeMax.
type BusySource interface {
	ListBusyPeriods(ctx context.Context, timeMin, timeMax time.Time) ([]interval.Interval, error)
}

// Calendar is the external calendar that owns actual bookings. Implementations
// must report errs.ErrUnauthenticated, errs.ErrNotFound and
// errs.ErrExternalService distinctly. A Calendar carries one user's credential
// and is handed to every operation that needs it.
type Calendar interface {
	BusySource
	CreateEvent(ctx context.Context, ev model.CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// TaskStore persists tasks. Reads after a Save must observe it.
type TaskStore interface {
	Load(ctx context.Context, id string) (*model.Task, error)
	Save(ctx context.Context, task *model.Task) (*model.Task, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.Task, error)
}

// Preferences supplies the user's working-hours policy.
type Preferences interface {
	WorkingHoursPolicy(ctx context.Context) (availability.Policy, error)
}

// BusySources merges the busy time of several sources. Any source failing
// fails the whole query.
type BusySources []BusySource

func (bs BusySources) ListBusyPeriods(ctx context.Context, timeMin, timeMax time.Time) ([]interval.Interval, error) {
	var all []interval.Interval
	for _, src := range bs {
		if src == nil {
			continue
		}
		busy, err := src.ListBusyPeriods(ctx, timeMin, timeMax)
		if err != nil {
			return nil, err
		}
		all = append(all, busy...)
	}
	interval.SortByStart(all)
	return all, nil
}
