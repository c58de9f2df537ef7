package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/model"
)

// TaskUpdate lists the user-editable fields; nil fields are left unchanged.
type TaskUpdate struct {
	Name              *string
	EstimatedMinutes  *int
	SessionPreference *int
	ClearPreference   bool
}

// CreateTask adds a new task to the backlog.
func (s *Scheduler) CreateTask(ctx context.Context, name string, estimatedMinutes int, sessionPreference *int) (*model.Task, error) {
	return s.createTask(ctx, name, estimatedMinutes, sessionPreference, "")
}

func (s *Scheduler) createTask(ctx context.Context, name string, estimatedMinutes int, sessionPreference *int, source string) (*model.Task, error) {
	now := s.Now()
	task := &model.Task{
		ID:                uuid.NewString(),
		Name:              name,
		EstimatedMinutes:  estimatedMinutes,
		SessionPreference: sessionPreference,
		Source:            source,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	task.RecomputeStatus()
	return s.tasks.Save(ctx, task)
}

// GetTask loads one task.
func (s *Scheduler) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return s.tasks.Load(ctx, id)
}

// ListTasks returns tasks ordered by creation time, optionally only those in status.
func (s *Scheduler) ListTasks(ctx context.Context, status model.Status) ([]*model.Task, error) {
	all, err := s.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Task, 0, len(all))
	for _, t := range all {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateTask applies a rename, re-estimate or preference change. Status is
// recomputed, since a new estimate can move a task between partial and scheduled.
func (s *Scheduler) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*model.Task, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.tasks.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		task.Name = *upd.Name
	}
	if upd.EstimatedMinutes != nil {
		task.EstimatedMinutes = *upd.EstimatedMinutes
	}
	if upd.ClearPreference {
		task.SessionPreference = nil
	} else if upd.SessionPreference != nil {
		p := *upd.SessionPreference
		task.SessionPreference = &p
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	task.RecomputeStatus()
	task.UpdatedAt = s.Now()
	return s.tasks.Save(ctx, task)
}

// DeleteTask cancels every linked calendar event and removes the task.
// Cancellation failures other than a missing credential are logged. When the
// credential is rejected partway, the task is kept without the sessions whose
// events were already cancelled.
func (s *Scheduler) DeleteTask(ctx context.Context, cal Calendar, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	task, err := s.tasks.Load(ctx, id)
	if err != nil {
		return err
	}
	var cancelled []string
	for _, session := range task.Sessions {
		if session.CalendarEventID == "" {
			continue
		}
		if cal == nil {
			return errs.ErrUnauthenticated
		}
		err := s.deleteEvent(ctx, cal, session.CalendarEventID)
		if errors.Is(err, errs.ErrUnauthenticated) {
			if len(cancelled) > 0 {
				s.dropSessions(ctx, task, cancelled)
			}
			return err
		}
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			s.Logger.Printf("failed to delete calendar event %s of task %s: %v", session.CalendarEventID, id, err)
			continue
		}
		cancelled = append(cancelled, session.ID)
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// dropSessions removes sessions whose events are already gone and saves the task.
func (s *Scheduler) dropSessions(ctx context.Context, task *model.Task, sessionIDs []string) {
	for _, sid := range sessionIDs {
		task.RemoveSession(sid)
	}
	task.UpdatedAt = s.Now()
	if _, err := s.tasks.Save(ctx, task); err != nil {
		s.Logger.Printf("could not save task %s after cancelling %d events: %v", task.ID, len(sessionIDs), err)
	}
}

// ImportResult reports what ImportTasks did with each draft.
type ImportResult struct {
	Created []*model.Task `json:"created"`
	// Skipped counts drafts whose source was already imported.
	Skipped int `json:"skipped"`
	// Rejected counts drafts that failed validation.
	Rejected int `json:"rejected"`
}

// ImportTasks adds drafts to the backlog. A draft whose Source matches an
// existing task is skipped, so importing the same export twice is harmless.
func (s *Scheduler) ImportTasks(ctx context.Context, drafts []model.Draft) (ImportResult, error) {
	var res ImportResult
	existing, err := s.tasks.List(ctx)
	if err != nil {
		return res, err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		if t.Source != "" {
			seen[t.Source] = true
		}
	}

	for _, d := range drafts {
		if d.Source != "" && seen[d.Source] {
			res.Skipped++
			continue
		}
		task, err := s.createTask(ctx, d.Name, d.EstimatedMinutes, nil, d.Source)
		if errors.Is(err, errs.ErrInvalidInput) {
			s.Logger.Printf("skipping %s: %v", d.Source, err)
			res.Rejected++
			continue
		}
		if err != nil {
			return res, err
		}
		if d.Source != "" {
			seen[d.Source] = true
		}
		res.Created = append(res.Created, task)
	}
	return res, nil
}
