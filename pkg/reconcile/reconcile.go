// Package reconcile sweeps booked sessions whose calendar events were removed
// outside timebox, returning their time to the task's backlog.
package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/scheduler"
)

// Calendar can book sessions and tell whether an event is still live.
type Calendar interface {
	scheduler.Calendar
	EventExists(ctx context.Context, eventID string) (bool, error)
}

// Removal describes one session dropped by a sweep.
type Removal struct {
	TaskID    string    `json:"taskId"`
	TaskName  string    `json:"taskName"`
	SessionID string    `json:"sessionId"`
	EventID   string    `json:"calendarEventId"`
	Start     time.Time `json:"startTime"`
}

// Report summarizes a sweep.
type Report struct {
	Checked int       `json:"checked"`
	Removed []Removal `json:"removed"`
	Failed  int       `json:"failed"`
}

type Reconciler struct {
	sched *scheduler.Scheduler

	Logger *log.Logger
	Now    func() time.Time
	// IncludePast also checks sessions that have already ended.
	IncludePast bool
}

func New(sched *scheduler.Scheduler) *Reconciler {
	return &Reconciler{sched: sched, Logger: log.Default(), Now: time.Now}
}

// Sweep checks every booked session against the calendar and unschedules
// those whose event is gone or cancelled. Lookup failures are logged and
// counted; a missing credential stops the sweep.
func (r *Reconciler) Sweep(ctx context.Context, cal Calendar) (Report, error) {
	var report Report
	if cal == nil {
		return report, errs.ErrUnauthenticated
	}
	tasks, err := r.sched.ListTasks(ctx, "")
	if err != nil {
		return report, err
	}
	now := r.Now()

	for _, task := range tasks {
		for _, session := range task.Sessions {
			if session.CalendarEventID == "" {
				continue
			}
			if !r.IncludePast && !session.End.After(now) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}

			report.Checked++
			exists, err := cal.EventExists(ctx, session.CalendarEventID)
			if errors.Is(err, errs.ErrUnauthenticated) {
				return report, err
			}
			if err != nil {
				report.Failed++
				r.Logger.Printf("could not check event %s of task %s: %v", session.CalendarEventID, task.ID, err)
				continue
			}
			if exists {
				continue
			}

			if _, err := r.sched.UnscheduleSession(ctx, cal, task.ID, session.ID); err != nil {
				if errors.Is(err, errs.ErrUnauthenticated) {
					return report, err
				}
				report.Failed++
				r.Logger.Printf("could not unschedule session %s of task %s: %v", session.ID, task.ID, err)
				continue
			}
			r.Logger.Printf("event %s was removed from the calendar, unscheduled session %s of %q", session.CalendarEventID, session.ID, task.Name)
			report.Removed = append(report.Removed, Removal{
				TaskID:    task.ID,
				TaskName:  task.Name,
				SessionID: session.ID,
				EventID:   session.CalendarEventID,
				Start:     session.Start,
			})
		}
	}
	return report, nil
}
