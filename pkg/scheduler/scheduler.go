// Package scheduler turns task estimates into calendar sessions. It combines
// the availability engine, the allocator and the task state machine with the
// external calendar and the task store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/timebox/pkg/allocate"
	"github.com/harrisonrobin/timebox/pkg/availability"
	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/interval"
	"github.com/harrisonrobin/timebox/pkg/model"
)

// DefaultTimeout bounds every call to the external calendar.
const DefaultTimeout = 15 * time.Second

// Scheduler coordinates booking and cancelling sessions. Calls touching the
// same task are serialized; different tasks proceed in parallel.
type Scheduler struct {
	tasks TaskStore
	prefs Preferences
	locks *taskLocks

	// Timeout bounds each calendar call. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *log.Logger
	Now     func() time.Time
}

// New creates a Scheduler backed by the given stores.
func New(tasks TaskStore, prefs Preferences) *Scheduler {
	return &Scheduler{
		tasks:  tasks,
		prefs:  prefs,
		locks:  newTaskLocks(),
		Logger: log.Default(),
		Now:    time.Now,
	}
}

// ScheduleResult reports the outcome of ScheduleTask.
type ScheduleResult struct {
	Task              *model.Task `json:"task"`
	SessionsCreated   int         `json:"sessionsCreated"`
	TotalScheduled    int         `json:"totalScheduled"`
	RemainingDuration int         `json:"remainingDuration"`
}

// UnscheduleResult reports the outcome of UnscheduleSession.
type UnscheduleResult struct {
	Task              *model.Task `json:"task"`
	RemainingDuration int         `json:"remainingDuration"`
}

// ScheduleTask books each chosen slot on the calendar, in the order given, and
// records a scheduled session for every event that was created. Booking stops
// at the first failure; sessions created before it stay committed and the
// error is a *errs.PartialFailureError. The result is non-nil whenever the
// task was loaded, including on partial failure.
func (s *Scheduler) ScheduleTask(ctx context.Context, cal Calendar, taskID string, chosen []model.Session, sessionPreference *int) (*ScheduleResult, error) {
	if len(chosen) == 0 {
		return nil, errs.Invalid("at least one slot is required")
	}
	ids := make(map[string]bool, len(chosen))
	for _, c := range chosen {
		if c.ID != "" {
			if ids[c.ID] {
				return nil, errs.Invalid("session %q is chosen twice", c.ID)
			}
			ids[c.ID] = true
		}
		iv := c.Interval()
		if !iv.Valid() {
			return nil, errs.Invalid("slot %s ends before it starts", c.Start.Format(time.RFC3339))
		}
		if iv.Minutes() > model.MaxSessionMinutes {
			return nil, errs.Invalid("slot of %d minutes exceeds the %d minute session limit", iv.Minutes(), model.MaxSessionMinutes)
		}
	}

	unlock := s.locks.lock(taskID)
	defer unlock()

	task, err := s.tasks.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	for _, c := range chosen {
		if _, dup := task.Session(c.ID); c.ID != "" && dup {
			return nil, errs.Invalid("session %q is already booked", c.ID)
		}
	}
	if cal == nil {
		return nil, errs.ErrUnauthenticated
	}
	policy, err := s.prefs.WorkingHoursPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	length, err := sessionLength(sessionPreference, task, policy)
	if err != nil {
		return nil, err
	}
	task.SessionPreference = &length

	created := 0
	var failure error
	for _, c := range chosen {
		session := model.Session{
			ID:      c.ID,
			Start:   c.Start,
			End:     c.End,
			Minutes: c.Interval().Minutes(),
			Status:  model.SessionScheduled,
		}
		if session.ID == "" {
			session.ID = uuid.NewString()
		}

		eventID, err := s.createEvent(ctx, cal, model.CalendarEvent{
			Summary:     task.Name,
			Description: fmt.Sprintf("Scheduled task session\nTask ID: %s", task.ID),
			Interval:    session.Interval(),
			Timezone:    policy.Location.String(),
			TaskID:      task.ID,
			SessionID:   session.ID,
		})
		if err != nil {
			failure = err
			break
		}
		session.CalendarEventID = eventID

		task.AddSessions(session)
		task.UpdatedAt = s.Now()
		saved, err := s.tasks.Save(ctx, task)
		if err != nil {
			// The event exists but the task does not know about it; try not to leave it behind.
			if derr := s.deleteEvent(ctx, cal, eventID); derr != nil {
				s.Logger.Printf("could not remove event %s after failing to save task %s: %v", eventID, task.ID, derr)
			}
			task.RemoveSession(session.ID)
			failure = fmt.Errorf("save task %s: %w", task.ID, err)
			break
		}
		task = saved
		created++
	}

	res := &ScheduleResult{
		Task:              task,
		SessionsCreated:   created,
		TotalScheduled:    task.BookedMinutes(),
		RemainingDuration: task.RemainingMinutes(),
	}
	if failure != nil {
		if created == 0 {
			return res, failure
		}
		s.Logger.Printf("task %s: booked %d of %d sessions: %v", task.ID, created, len(chosen), failure)
		return res, &errs.PartialFailureError{SessionsCreated: created, Requested: len(chosen), Err: failure}
	}
	return res, nil
}

// UnscheduleSession removes a session from its task and cancels its calendar
// event. A failed cancellation is logged and the session is removed anyway, so
// the calendar may keep an orphaned event.
func (s *Scheduler) UnscheduleSession(ctx context.Context, cal Calendar, taskID, sessionID string) (*UnscheduleResult, error) {
	unlock := s.locks.lock(taskID)
	defer unlock()

	task, err := s.tasks.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	session, ok := task.Session(sessionID)
	if !ok {
		return nil, errs.NotFound("session", sessionID)
	}

	if session.CalendarEventID != "" {
		if cal == nil {
			return nil, errs.ErrUnauthenticated
		}
		err := s.deleteEvent(ctx, cal, session.CalendarEventID)
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrUnauthenticated):
			return nil, err
		case errors.Is(err, errs.ErrNotFound):
			s.Logger.Printf("event %s for session %s was already gone", session.CalendarEventID, sessionID)
		default:
			s.Logger.Printf("failed to delete calendar event %s, removing session %s anyway: %v", session.CalendarEventID, sessionID, err)
		}
	}

	if _, err := task.RemoveSession(sessionID); err != nil {
		return nil, err
	}
	task.UpdatedAt = s.Now()
	saved, err := s.tasks.Save(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return &UnscheduleResult{Task: saved, RemainingDuration: saved.RemainingMinutes()}, nil
}

// FindSlots lists free slots of at least minMinutes within r, using busy as
// the source of occupied time.
func (s *Scheduler) FindSlots(ctx context.Context, busy BusySource, r availability.DateRange, minMinutes int) ([]availability.Slot, error) {
	policy, err := s.prefs.WorkingHoursPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return s.findSlots(ctx, busy, policy, r, minMinutes)
}

func (s *Scheduler) findSlots(ctx context.Context, busy BusySource, policy availability.Policy, r availability.DateRange, minMinutes int) ([]availability.Slot, error) {
	if busy == nil {
		return nil, errs.ErrUnauthenticated
	}
	if r.End.Before(r.Start) {
		return nil, errs.Invalid("date range ends before it starts")
	}
	loc := policy.Location
	first, last := r.Start.In(loc), r.End.In(loc)
	timeMin := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	timeMax := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, loc)

	var periods []interval.Interval
	err := s.call(ctx, "list busy periods", func(ctx context.Context) error {
		var err error
		periods, err = busy.ListBusyPeriods(ctx, timeMin, timeMax)
		return err
	})
	if err != nil {
		return nil, err
	}
	return availability.FindAvailableSlots(periods, policy, r, minMinutes, s.Now())
}

// Plan previews an allocation of the task's unbooked time over the free slots
// in r, earliest first. Nothing is booked.
func (s *Scheduler) Plan(ctx context.Context, busy BusySource, taskID string, r availability.DateRange, sessionPreference *int) (allocate.Result, error) {
	task, err := s.tasks.Load(ctx, taskID)
	if err != nil {
		return allocate.Result{}, err
	}
	policy, err := s.prefs.WorkingHoursPolicy(ctx)
	if err != nil {
		return allocate.Result{}, fmt.Errorf("load preferences: %w", err)
	}
	length, err := sessionLength(sessionPreference, task, policy)
	if err != nil {
		return allocate.Result{}, err
	}
	slots, err := s.findSlots(ctx, busy, policy, r, policy.MinSession())
	if err != nil {
		return allocate.Result{}, err
	}
	return allocate.Allocate(task, slots, min(length, policy.MaxSessionMinutes), policy.MinSession())
}

// sessionLength picks the explicit preference, then the task's stored one,
// then the policy default.
func sessionLength(explicit *int, task *model.Task, policy availability.Policy) (int, error) {
	length := policy.DefaultSessionMinutes
	switch {
	case explicit != nil:
		length = *explicit
	case task.SessionPreference != nil:
		length = *task.SessionPreference
	}
	if length <= 0 || length > model.MaxSessionMinutes {
		return 0, errs.Invalid("session length %d must be between 1 and %d minutes", length, model.MaxSessionMinutes)
	}
	return length, nil
}

func (s *Scheduler) createEvent(ctx context.Context, cal Calendar, ev model.CalendarEvent) (string, error) {
	var id string
	err := s.call(ctx, "create event", func(ctx context.Context) error {
		var err error
		id, err = cal.CreateEvent(ctx, ev)
		return err
	})
	return id, err
}

func (s *Scheduler) deleteEvent(ctx context.Context, cal Calendar, eventID string) error {
	return s.call(ctx, "delete event "+eventID, func(ctx context.Context) error {
		return cal.DeleteEvent(ctx, eventID)
	})
}

// call runs fn with a deadline and gives up waiting once it passes, even if
// fn ignores its context.
func (s *Scheduler) call(ctx context.Context, op string, fn func(context.Context) error) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(cctx) }()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = cctx.Err()
	}
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s after %s: %w", op, timeout, errs.ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
