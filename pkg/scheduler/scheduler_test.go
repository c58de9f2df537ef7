package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/timebox/pkg/availability"
	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/interval"
	"github.com/harrisonrobin/timebox/pkg/model"
	"github.com/harrisonrobin/timebox/pkg/store"
)

type fakeCalendar struct {
	mu        sync.Mutex
	busy      []interval.Interval
	events    map[string]model.CalendarEvent
	next      int
	failOn    int // 1-based CreateEvent call that fails; 0 never fails
	failWith  error
	deleteErr error
	// deleteFailOn makes only that 1-based DeleteEvent call return deleteErr.
	deleteFailOn int
	deletes      int
	block        chan struct{}
	calls        int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]model.CalendarEvent)}
}

func (f *fakeCalendar) ListBusyPeriods(_ context.Context, timeMin, timeMax time.Time) ([]interval.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interval.Interval
	for _, b := range f.busy {
		if interval.Overlaps(b, interval.New(timeMin, timeMax)) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, ev model.CalendarEvent) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn != 0 && f.calls == f.failOn {
		return "", f.failWith
	}
	f.next++
	id := fmt.Sprintf("evt-%d", f.next)
	f.events[id] = ev
	return id, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil && (f.deleteFailOn == 0 || f.deletes == f.deleteFailOn) {
		return f.deleteErr
	}
	if _, ok := f.events[eventID]; !ok {
		return fmt.Errorf("event %s: %w", eventID, errs.ErrNotFound)
	}
	delete(f.events, eventID)
	return nil
}

type staticPrefs struct {
	policy availability.Policy
}

func (p staticPrefs) WorkingHoursPolicy(context.Context) (availability.Policy, error) {
	return p.policy, nil
}

func at(day, hour, min int) time.Time {
	return time.Date(2025, 3, day, hour, min, 0, 0, time.UTC)
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.MemoryStore) {
	t.Helper()
	policy, err := availability.NewPolicy("09:00", "17:00", "UTC")
	require.NoError(t, err)

	tasks := store.NewMemoryStore()
	s := New(tasks, staticPrefs{policy: policy})
	s.Logger = log.New(io.Discard, "", 0)
	s.Now = func() time.Time { return at(1, 8, 0) }
	return s, tasks
}

func proposal(id string, start, end time.Time) model.Session {
	return model.Session{ID: id, Start: start, End: end, Minutes: int(end.Sub(start) / time.Minute), Status: model.SessionProposed}
}

func TestScheduleTaskBooksEverySlot(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 150, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBacklog, task.Status)

	res, err := s.ScheduleTask(ctx, cal, task.ID, []model.Session{
		proposal("p1", at(10, 9, 0), at(10, 11, 0)),
		proposal("p2", at(10, 13, 0), at(10, 13, 30)),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SessionsCreated)
	assert.Equal(t, 150, res.TotalScheduled)
	assert.Equal(t, 0, res.RemainingDuration)
	assert.Equal(t, model.StatusScheduled, res.Task.Status)
	require.NotNil(t, res.Task.SessionPreference)
	assert.Equal(t, 120, *res.Task.SessionPreference)

	for _, ss := range res.Task.Sessions {
		assert.Equal(t, model.SessionScheduled, ss.Status)
		assert.NotEmpty(t, ss.CalendarEventID)
		ev := cal.events[ss.CalendarEventID]
		assert.Equal(t, "write report", ev.Summary)
		assert.Equal(t, task.ID, ev.TaskID)
		assert.Equal(t, ss.ID, ev.SessionID)
		assert.Contains(t, ev.Description, "Task ID: "+task.ID)
	}

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Sessions, 2)
}

func TestScheduleTaskPartialFailure(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()
	cal.failOn = 2
	cal.failWith = fmt.Errorf("rate limited: %w", errs.ErrExternalService)

	task, err := s.CreateTask(ctx, "write report", 180, nil)
	require.NoError(t, err)

	res, err := s.ScheduleTask(ctx, cal, task.ID, []model.Session{
		proposal("p1", at(10, 9, 0), at(10, 10, 0)),
		proposal("p2", at(10, 11, 0), at(10, 12, 0)),
		proposal("p3", at(10, 13, 0), at(10, 14, 0)),
	}, nil)

	var pf *errs.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, 1, pf.SessionsCreated)
	assert.Equal(t, 3, pf.Requested)
	assert.ErrorIs(t, err, errs.ErrExternalService)
	assert.Contains(t, err.Error(), "scheduled 1 of 3")

	require.NotNil(t, res)
	assert.Equal(t, 1, res.SessionsCreated)
	assert.Equal(t, 2, cal.calls, "the third slot must not be attempted")

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, stored.Sessions, 1)
	assert.Equal(t, "p1", stored.Sessions[0].ID)
	assert.Equal(t, model.StatusPartial, stored.Status)
}

func TestScheduleTaskFirstSlotFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()
	cal.failOn = 1
	cal.failWith = errs.ErrUnauthenticated

	task, err := s.CreateTask(ctx, "write report", 60, nil)
	require.NoError(t, err)

	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("p1", at(10, 9, 0), at(10, 10, 0))}, nil)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
	var pf *errs.PartialFailureError
	assert.False(t, errors.As(err, &pf))

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Sessions)
	assert.Nil(t, stored.SessionPreference)
}

func TestScheduleTaskValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()
	task, err := s.CreateTask(ctx, "write report", 60, nil)
	require.NoError(t, err)

	_, err = s.ScheduleTask(ctx, cal, task.ID, nil, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = s.ScheduleTask(ctx, cal, "missing", []model.Session{proposal("p", at(10, 9, 0), at(10, 10, 0))}, nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("p", at(10, 9, 0), at(10, 14, 0))}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput, "five hours exceeds the session limit")

	tooLong := 300
	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("p", at(10, 9, 0), at(10, 10, 0))}, &tooLong)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = s.ScheduleTask(ctx, nil, task.ID, []model.Session{proposal("p", at(10, 9, 0), at(10, 10, 0))}, nil)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	assert.Equal(t, 0, cal.calls)
}

func TestUnscheduleSessionReturnsToBacklog(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 90, nil)
	require.NoError(t, err)
	res, err := s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("p1", at(10, 9, 0), at(10, 10, 0))}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartial, res.Task.Status)

	out, err := s.UnscheduleSession(ctx, cal, task.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusBacklog, out.Task.Status)
	assert.Equal(t, 90, out.RemainingDuration)
	assert.Empty(t, cal.events)
}

func TestUnscheduleSessionKeepsGoingWhenDeleteFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 90, nil)
	require.NoError(t, err)
	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("p1", at(10, 9, 0), at(10, 10, 0))}, nil)
	require.NoError(t, err)

	cal.deleteErr = fmt.Errorf("boom: %w", errs.ErrExternalService)
	out, err := s.UnscheduleSession(ctx, cal, task.ID, "p1")
	require.NoError(t, err)
	assert.Empty(t, out.Task.Sessions)
	assert.Len(t, cal.events, 1, "the orphaned event is left on the calendar")
}

func TestUnscheduleSessionAbortsWhenUnauthenticated(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 90, nil)
	require.NoError(t, err)
	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("p1", at(10, 9, 0), at(10, 10, 0))}, nil)
	require.NoError(t, err)

	cal.deleteErr = errs.ErrUnauthenticated
	_, err = s.UnscheduleSession(ctx, cal, task.ID, "p1")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Sessions, 1)
}

func TestUnscheduleSessionNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 90, nil)
	require.NoError(t, err)

	_, err = s.UnscheduleSession(ctx, cal, task.ID, "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = s.UnscheduleSession(ctx, cal, "nope", "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestScheduleThenUnscheduleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 200, nil)
	require.NoError(t, err)
	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("keep", at(9, 9, 0), at(9, 10, 0))}, nil)
	require.NoError(t, err)
	before, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)

	res, err := s.ScheduleTask(ctx, cal, task.ID, []model.Session{
		proposal("", at(10, 9, 0), at(10, 10, 0)),
		proposal("", at(10, 11, 0), at(10, 12, 0)),
	}, nil)
	require.NoError(t, err)
	for _, ss := range res.Task.Sessions[1:] {
		_, err := s.UnscheduleSession(ctx, cal, task.ID, ss.ID)
		require.NoError(t, err)
	}

	after, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Sessions, after.Sessions)
	assert.Equal(t, before.Status, after.Status)
}

func TestConcurrentSchedulingIsSerialized(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 600, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(10+i, 9, 0)
			_, err := s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("", start, start.Add(time.Hour))}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Sessions, 8, "no session may be lost to a concurrent write")
	assert.Equal(t, 0, s.locks.size())
}

func TestCalendarCallTimesOut(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	s.Timeout = 20 * time.Millisecond
	cal := newFakeCalendar()
	cal.block = make(chan struct{})
	defer close(cal.block)

	task, err := s.CreateTask(ctx, "write report", 60, nil)
	require.NoError(t, err)

	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("p1", at(10, 9, 0), at(10, 10, 0))}, nil)
	assert.ErrorIs(t, err, errs.ErrTimeout)
	assert.ErrorIs(t, err, errs.ErrExternalService)
}

func TestPlanAllocatesOverFreeSlots(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()
	cal.busy = []interval.Interval{
		interval.New(at(10, 11, 0), at(10, 13, 0)),
		interval.New(at(10, 14, 0), at(10, 17, 0)),
	}

	task, err := s.CreateTask(ctx, "write report", 150, nil)
	require.NoError(t, err)

	res, err := s.Plan(ctx, cal, task.ID, availability.DateRange{Start: at(10, 0, 0), End: at(10, 0, 0)}, nil)
	require.NoError(t, err)
	require.Len(t, res.Sessions, 2)
	assert.Equal(t, at(10, 9, 0), res.Sessions[0].Start)
	assert.Equal(t, 120, res.Sessions[0].Minutes)
	assert.Equal(t, at(10, 13, 0), res.Sessions[1].Start)
	assert.Equal(t, 30, res.Sessions[1].Minutes)
	assert.True(t, res.FullyCovered)

	// Booking the plan as-is commits it.
	booked, err := s.ScheduleTask(ctx, cal, task.ID, res.Sessions, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, booked.Task.Status)
}

func TestFindSlotsRequiresBusySource(t *testing.T) {
	s, _ := newTestScheduler(t)
	_, err := s.FindSlots(context.Background(), nil, availability.DateRange{Start: at(10, 0, 0), End: at(10, 0, 0)}, 30)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestUpdateTaskRecomputesStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 120, nil)
	require.NoError(t, err)
	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{proposal("p1", at(10, 9, 0), at(10, 10, 0))}, nil)
	require.NoError(t, err)

	est := 60
	name := "write short report"
	updated, err := s.UpdateTask(ctx, task.ID, TaskUpdate{Name: &name, EstimatedMinutes: &est})
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, updated.Status)
	assert.Equal(t, name, updated.Name)

	bad := 0
	_, err = s.UpdateTask(ctx, task.ID, TaskUpdate{EstimatedMinutes: &bad})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestDeleteTaskCancelsEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 120, nil)
	require.NoError(t, err)
	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{
		proposal("p1", at(10, 9, 0), at(10, 10, 0)),
		proposal("p2", at(11, 9, 0), at(11, 10, 0)),
	}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteTask(ctx, nil, task.ID), errs.ErrUnauthenticated)

	require.NoError(t, s.DeleteTask(ctx, cal, task.ID))
	assert.Empty(t, cal.events)
	_, err = s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListTasksFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	a, err := s.CreateTask(ctx, "a", 60, nil)
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, "b", 60, nil)
	require.NoError(t, err)
	_, err = s.ScheduleTask(ctx, cal, a.ID, []model.Session{proposal("p1", at(10, 9, 0), at(10, 10, 0))}, nil)
	require.NoError(t, err)

	scheduled, err := s.ListTasks(ctx, model.StatusScheduled)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "a", scheduled[0].Name)

	all, err := s.ListTasks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type staticBusy []interval.Interval

func (s staticBusy) ListBusyPeriods(context.Context, time.Time, time.Time) ([]interval.Interval, error) {
	return s, nil
}

func TestBusySourcesMerge(t *testing.T) {
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()
	cal.busy = []interval.Interval{interval.New(at(10, 9, 0), at(10, 12, 0))}
	feed := staticBusy{interval.New(at(10, 13, 0), at(10, 17, 0))}

	slots, err := s.FindSlots(context.Background(), BusySources{cal, feed}, availability.DateRange{Start: at(10, 0, 0), End: at(10, 0, 0)}, 30)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, at(10, 12, 0), slots[0].Start)
	assert.Equal(t, at(10, 13, 0), slots[0].End)
	assert.Equal(t, 60, slots[0].Minutes)
}

func TestImportTasksSkipsKnownSources(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	drafts := []model.Draft{
		{Source: "taskwarrior:a", Name: "write report", EstimatedMinutes: 90},
		{Source: "taskwarrior:b", Name: "review", EstimatedMinutes: 0},
		{Source: "taskwarrior:c", Name: "plan sprint", EstimatedMinutes: 45},
	}
	res, err := s.ImportTasks(ctx, drafts)
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, "taskwarrior:a", res.Created[0].Source)
	assert.Equal(t, model.StatusBacklog, res.Created[0].Status)

	again, err := s.ImportTasks(ctx, drafts)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, 2, again.Skipped)

	all, err := s.ListTasks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestScheduleTaskRejectsRepeatedSessionID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 120, nil)
	require.NoError(t, err)

	_, err = s.ScheduleTask(ctx, cal, task.ID, []model.Session{
		proposal("dup", at(10, 9, 0), at(10, 10, 0)),
		proposal("dup", at(10, 11, 0), at(10, 12, 0)),
	}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Zero(t, cal.calls)
	assert.Empty(t, cal.events)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Sessions)
	assert.Equal(t, model.StatusBacklog, got.Status)
}

func TestDeleteTaskKeepsOnlyUncancelledSessions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)
	cal := newFakeCalendar()

	task, err := s.CreateTask(ctx, "write report", 180, nil)
	require.NoError(t, err)
	res, err := s.ScheduleTask(ctx, cal, task.ID, []model.Session{
		proposal("p1", at(10, 9, 0), at(10, 10, 0)),
		proposal("p2", at(10, 11, 0), at(10, 12, 0)),
		proposal("p3", at(10, 13, 0), at(10, 14, 0)),
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Task.Sessions, 3)

	cal.deleteErr = errs.ErrUnauthenticated
	cal.deleteFailOn = 2
	assert.ErrorIs(t, s.DeleteTask(ctx, cal, task.ID), errs.ErrUnauthenticated)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got.Sessions, 2)
	assert.Equal(t, model.StatusPartial, got.Status)
	for _, ss := range got.Sessions {
		assert.NotEqual(t, "p1", ss.ID)
		assert.Contains(t, cal.events, ss.CalendarEventID)
	}
	assert.Len(t, cal.events, 2)
}

type savesRecorder struct {
	*store.MemoryStore
	sources []string
}

func (r *savesRecorder) Save(ctx context.Context, task *model.Task) (*model.Task, error) {
	r.sources = append(r.sources, task.Source)
	return r.MemoryStore.Save(ctx, task)
}

func TestImportTasksSavesSourceWithTask(t *testing.T) {
	ctx := context.Background()
	policy, err := availability.NewPolicy("09:00", "17:00", "UTC")
	require.NoError(t, err)
	rec := &savesRecorder{MemoryStore: store.NewMemoryStore()}
	s := New(rec, staticPrefs{policy: policy})
	s.Logger = log.New(io.Discard, "", 0)

	res, err := s.ImportTasks(ctx, []model.Draft{
		{Source: "org:todo.org#a", Name: "write report", EstimatedMinutes: 90},
		{Source: "org:todo.org#b", Name: "review", EstimatedMinutes: 30},
	})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)
	assert.Equal(t, []string{"org:todo.org#a", "org:todo.org#b"}, rec.sources)
}
