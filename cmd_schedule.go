package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/timebox/pkg/allocate"
	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/model"
)

func slotsCmd(opts *globalOptions) *cobra.Command {
	var (
		busy    busyOptions
		rng     rangeOptions
		minimum string
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free time inside working hours",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			r, err := a.dateRange(rng)
			if err != nil {
				return err
			}
			minMinutes := a.cfg.Sessions.MinMinutes
			if minimum != "" {
				if minMinutes, err = parseMinutes(minimum); err != nil {
					return err
				}
			}
			src, err := a.busySource(ctx, busy)
			if err != nil {
				return err
			}
			slots, err := a.sched.FindSlots(ctx, src, r, minMinutes)
			if err != nil {
				return err
			}
			if a.opts.jsonOut {
				return a.printJSON(slots)
			}
			if len(slots) == 0 {
				fmt.Fprintln(a.out, "No free slots in range.")
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tTIME\tFREE\tBOOK WITH")
			for _, s := range slots {
				fmt.Fprintf(w, "%s\t%s\t%s\t--slot %s\n", s.DisplayDate, s.DisplayTime, minutes(s.Minutes), formatSlot(s.Start, s.Minutes))
			}
			return w.Flush()
		}),
	}
	busy.register(cmd)
	rng.register(cmd)
	cmd.Flags().StringVar(&minimum, "min", "", "shortest slot to list (default sessions.min_minutes)")
	return cmd
}

func planCmd(opts *globalOptions) *cobra.Command {
	var (
		busy    busyOptions
		rng     rangeOptions
		session string
	)
	cmd := &cobra.Command{
		Use:   "plan TASK",
		Short: "Preview how a task's remaining time fits into free slots",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			task, plan, err := a.plan(ctx, args[0], busy, rng, session)
			if err != nil {
				return err
			}
			if a.opts.jsonOut {
				return a.printJSON(plan)
			}
			printPlan(a, task, plan)
			return nil
		}),
	}
	busy.register(cmd)
	rng.register(cmd)
	cmd.Flags().StringVarP(&session, "session", "s", "", "session length for this plan")
	return cmd
}

func bookCmd(opts *globalOptions) *cobra.Command {
	var (
		busy    busyOptions
		rng     rangeOptions
		session string
		slots   []string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "book TASK",
		Short: "Book sessions for a task into the calendar",
		Long: `Books the given --slot values, or, without --slot, the sessions that
"timebox plan" proposes for the same range. A slot is START/LENGTH, for
example 2025-03-03T09:00/90, read in the working-hours timezone.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			task, err := a.findTask(ctx, args[0])
			if err != nil {
				return err
			}
			pref, err := optionalMinutes(session)
			if err != nil {
				return err
			}

			var chosen []model.Session
			if len(slots) > 0 {
				policy, err := a.cfg.Policy()
				if err != nil {
					return err
				}
				for _, s := range slots {
					c, err := parseSlot(s, policy.Location)
					if err != nil {
						return err
					}
					chosen = append(chosen, c)
				}
			} else {
				_, plan, err := a.plan(ctx, task.ID, busy, rng, session)
				if err != nil {
					return err
				}
				if len(plan.Sessions) == 0 {
					return fmt.Errorf("no free slot fits %q in the selected range", task.Name)
				}
				chosen = plan.Sessions
			}

			if dryRun {
				printSessions(a.out, chosen)
				return nil
			}
			cal, err := a.calendar(ctx)
			if err != nil {
				return err
			}
			res, err := a.sched.ScheduleTask(ctx, cal, task.ID, chosen, pref)
			var partial *errs.PartialFailureError
			if err != nil && !errors.As(err, &partial) {
				return err
			}
			if a.opts.jsonOut {
				if jerr := a.printJSON(res); jerr != nil {
					return jerr
				}
				return err
			}
			fmt.Fprintf(a.out, "Booked %d of %d sessions for %q; %s left to schedule.\n",
				res.SessionsCreated, len(chosen), res.Task.Name, minutes(max(res.RemainingDuration, 0)))
			printSessions(a.out, res.Task.Sessions)
			return err
		}),
	}
	busy.register(cmd)
	rng.register(cmd)
	cmd.Flags().StringVarP(&session, "session", "s", "", "session length, remembered for the task")
	cmd.Flags().StringArrayVar(&slots, "slot", nil, "slot to book as START/LENGTH (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the sessions without booking them")
	return cmd
}

func unbookCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unbook TASK SESSION",
		Short: "Cancel a booked session and return its time to the backlog",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			task, err := a.findTask(ctx, args[0])
			if err != nil {
				return err
			}
			sessionID := args[1]
			for _, s := range task.Sessions {
				if s.ID != sessionID && strings.HasPrefix(s.ID, sessionID) {
					sessionID = s.ID
					break
				}
			}
			cal, err := a.calendar(ctx)
			if err != nil {
				return err
			}
			res, err := a.sched.UnscheduleSession(ctx, cal, task.ID, sessionID)
			if err != nil {
				return err
			}
			if a.opts.jsonOut {
				return a.printJSON(res)
			}
			fmt.Fprintf(a.out, "Unbooked session of %q; %s left to schedule.\n", res.Task.Name, minutes(res.RemainingDuration))
			return nil
		}),
	}
}

func (a *app) plan(ctx context.Context, ref string, busy busyOptions, rng rangeOptions, session string) (*model.Task, allocate.Result, error) {
	task, err := a.findTask(ctx, ref)
	if err != nil {
		return nil, allocate.Result{}, err
	}
	pref, err := optionalMinutes(session)
	if err != nil {
		return nil, allocate.Result{}, err
	}
	r, err := a.dateRange(rng)
	if err != nil {
		return nil, allocate.Result{}, err
	}
	src, err := a.busySource(ctx, busy)
	if err != nil {
		return nil, allocate.Result{}, err
	}
	plan, err := a.sched.Plan(ctx, src, task.ID, r, pref)
	return task, plan, err
}

func printPlan(a *app, task *model.Task, plan allocate.Result) {
	if len(plan.Sessions) == 0 {
		fmt.Fprintf(a.out, "No free slot fits %q.\n", task.Name)
		return
	}
	printSessions(a.out, plan.Sessions)
	if plan.FullyCovered {
		fmt.Fprintf(a.out, "Covers all %s of %q.\n", minutes(plan.TotalAllocated), task.Name)
		return
	}
	fmt.Fprintf(a.out, "Covers %s of %q; %s does not fit in range.\n",
		minutes(plan.TotalAllocated), task.Name, minutes(plan.Remaining))
}

// parseSlot reads "2006-01-02T15:04/90" in loc.
func parseSlot(s string, loc *time.Location) (model.Session, error) {
	startText, lengthText, ok := strings.Cut(s, "/")
	if !ok {
		return model.Session{}, errs.Invalid("slot %q must be START/LENGTH", s)
	}
	start, err := time.ParseInLocation("2006-01-02T15:04", startText, loc)
	if err != nil {
		return model.Session{}, errs.Invalid("slot start %q is not YYYY-MM-DDTHH:MM", startText)
	}
	length, err := parseMinutes(lengthText)
	if err != nil {
		return model.Session{}, err
	}
	if length <= 0 {
		return model.Session{}, errs.Invalid("slot %q has no length", s)
	}
	end := start.Add(time.Duration(length) * time.Minute)
	return model.Session{Start: start, End: end, Minutes: length}, nil
}

func formatSlot(start time.Time, length int) string {
	return fmt.Sprintf("%s/%d", start.Format("2006-01-02T15:04"), length)
}
