// Package allocate splits a task's unbooked time across candidate slots.
//
// The allocation is a first-fit greedy cover: slots are consumed in the order
// given, each slot yields at most one session, and a slot too short for the
// minimum session is skipped. Callers decide the slot order.
package allocate

import (
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/timebox/pkg/availability"
	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/model"
)

// Result is a proposed allocation. TotalAllocated+Remaining always equals the
// task's unbooked minutes at the time of the call.
type Result struct {
	Sessions       []model.Session `json:"sessions"`
	TotalAllocated int             `json:"totalScheduled"`
	Remaining      int             `json:"remainingDuration"`
	FullyCovered   bool            `json:"fullyScheduled"`
}

// Allocate proposes sessions for the task's remaining duration. A
// minSessionMinutes of zero or less means the default of 30 minutes.
func Allocate(task *model.Task, slots []availability.Slot, capMinutes, minSessionMinutes int) (Result, error) {
	if task == nil {
		return Result{}, errs.Invalid("no task to allocate")
	}
	if capMinutes <= 0 || capMinutes > model.MaxSessionMinutes {
		return Result{}, errs.Invalid("session length %d must be between 1 and %d minutes", capMinutes, model.MaxSessionMinutes)
	}
	if minSessionMinutes <= 0 {
		minSessionMinutes = availability.DefaultMinSessionMinutes
	}

	remaining := task.RemainingMinutes()
	start := remaining
	var sessions []model.Session

	for _, slot := range slots {
		if remaining <= 0 {
			break
		}
		usable := min(slot.Interval().WholeMinutes(), capMinutes, remaining)
		if usable < minSessionMinutes {
			continue
		}
		sessions = append(sessions, model.Session{
			ID:      uuid.NewString(),
			Start:   slot.Start,
			End:     slot.Start.Add(time.Duration(usable) * time.Minute),
			Minutes: usable,
			Status:  model.SessionProposed,
		})
		remaining -= usable
	}

	return Result{
		Sessions:       sessions,
		TotalAllocated: start - remaining,
		Remaining:      remaining,
		FullyCovered:   remaining <= 0,
	}, nil
}
