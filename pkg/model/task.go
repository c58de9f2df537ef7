package model

import (
	"time"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/interval"
)

// Status is the scheduling state of a task. It is always derived from the
// task's sessions and estimate, never set directly.
type Status string

const (
	StatusBacklog   Status = "backlog"
	StatusPartial   Status = "partial"
	StatusScheduled Status = "scheduled"
)

// SessionStatus tells a proposed session apart from one booked on the calendar.
type SessionStatus string

const (
	SessionProposed  SessionStatus = "proposed"
	SessionScheduled SessionStatus = "scheduled"
)

// Session is one block of work on a task.
type Session struct {
	ID              string        `json:"sessionId"`
	Start           time.Time     `json:"startTime"`
	End             time.Time     `json:"endTime"`
	Minutes         int           `json:"duration"`
	CalendarEventID string        `json:"calendarEventId,omitempty"`
	Status          SessionStatus `json:"status"`
}

// Interval returns the session's time range.
func (s Session) Interval() interval.Interval {
	return interval.New(s.Start, s.End)
}

// Task is a unit of work with an estimated duration, split into sessions.
type Task struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	EstimatedMinutes  int       `json:"estimatedDuration"`
	SessionPreference *int      `json:"sessionPreference"`
	Status            Status    `json:"status"`
	Sessions          []Session `json:"scheduledSessions"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	// Source names where an imported task came from, e.g. "taskwarrior:<uuid>".
	Source string `json:"source,omitempty"`
}

// BookedMinutes sums the duration of all sessions.
func (t *Task) BookedMinutes() int {
	total := 0
	for _, s := range t.Sessions {
		total += s.Minutes
	}
	return total
}

// RemainingMinutes is the estimate not yet covered by sessions. It can be
// negative while a task is over-allocated.
func (t *Task) RemainingMinutes() int {
	return t.EstimatedMinutes - t.BookedMinutes()
}

// DeriveStatus maps booked and estimated minutes to a status.
func DeriveStatus(booked, estimated int) Status {
	switch {
	case booked <= 0:
		return StatusBacklog
	case booked >= estimated:
		return StatusScheduled
	default:
		return StatusPartial
	}
}

// RecomputeStatus refreshes Status from the current sessions and returns it.
func (t *Task) RecomputeStatus() Status {
	t.Status = DeriveStatus(t.BookedMinutes(), t.EstimatedMinutes)
	return t.Status
}

// AddSessions appends sessions and recomputes the status.
func (t *Task) AddSessions(sessions ...Session) {
	t.Sessions = append(t.Sessions, sessions...)
	t.RecomputeStatus()
}

// Session looks up a session by ID.
func (t *Task) Session(id string) (Session, bool) {
	for _, s := range t.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

// RemoveSession drops the session with the given ID and recomputes the status.
func (t *Task) RemoveSession(id string) (Session, error) {
	for i, s := range t.Sessions {
		if s.ID != id {
			continue
		}
		t.Sessions = append(t.Sessions[:i:i], t.Sessions[i+1:]...)
		t.RecomputeStatus()
		return s, nil
	}
	return Session{}, errs.NotFound("session", id)
}

// Validate checks the fields a user can edit directly.
func (t *Task) Validate() error {
	if t.Name == "" {
		return errs.Invalid("task name is required")
	}
	if t.EstimatedMinutes <= 0 {
		return errs.Invalid("estimated duration must be positive, got %d", t.EstimatedMinutes)
	}
	if p := t.SessionPreference; p != nil && (*p <= 0 || *p > MaxSessionMinutes) {
		return errs.Invalid("session preference %d must be between 1 and %d minutes", *p, MaxSessionMinutes)
	}
	return nil
}

// MaxSessionMinutes is the longest session that can ever be booked.
const MaxSessionMinutes = 240

// Clone returns a deep copy, so stores never share session slices with callers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.SessionPreference != nil {
		p := *t.SessionPreference
		out.SessionPreference = &p
	}
	out.Sessions = append([]Session(nil), t.Sessions...)
	return &out
}
