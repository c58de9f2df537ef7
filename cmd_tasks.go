package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/model"
	"github.com/harrisonrobin/timebox/pkg/scheduler"
)

func tasksCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Manage the task backlog",
	}
	cmd.AddCommand(tasksAddCmd(opts), tasksListCmd(opts), tasksShowCmd(opts), tasksEditCmd(opts), tasksRmCmd(opts))
	return cmd
}

func tasksAddCmd(opts *globalOptions) *cobra.Command {
	var estimate, session string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a task with an estimated duration",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			est, err := parseMinutes(estimate)
			if err != nil {
				return err
			}
			pref, err := optionalMinutes(session)
			if err != nil {
				return err
			}
			task, err := a.sched.CreateTask(ctx, args[0], est, pref)
			if err != nil {
				return err
			}
			return a.printTask(task)
		}),
	}
	cmd.Flags().StringVarP(&estimate, "estimate", "e", "", "estimated duration, e.g. 150, 2h30m or 2:30")
	cmd.Flags().StringVarP(&session, "session", "s", "", "preferred session length")
	_ = cmd.MarkFlagRequired("estimate")
	return cmd
}

func tasksListCmd(opts *globalOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, optionally by status (backlog, partial, scheduled)",
		Args:    cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			switch model.Status(status) {
			case "", model.StatusBacklog, model.StatusPartial, model.StatusScheduled:
			default:
				return errs.Invalid("unknown status %q", status)
			}
			tasks, err := a.sched.ListTasks(ctx, model.Status(status))
			if err != nil {
				return err
			}
			if a.opts.jsonOut {
				return a.printJSON(tasks)
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tESTIMATE\tBOOKED\tSESSIONS")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", shortID(t.ID), t.Name, t.Status,
					minutes(t.EstimatedMinutes), minutes(t.BookedMinutes()), len(t.Sessions))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "only tasks in this status")
	return cmd
}

func tasksShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK",
		Short: "Show a task and its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			task, err := a.findTask(ctx, args[0])
			if err != nil {
				return err
			}
			return a.printTask(task)
		}),
	}
}

func tasksEditCmd(opts *globalOptions) *cobra.Command {
	var name, estimate, session string
	var clearSession bool
	cmd := &cobra.Command{
		Use:   "edit TASK",
		Short: "Rename or re-estimate a task",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			task, err := a.findTask(ctx, args[0])
			if err != nil {
				return err
			}
			var upd scheduler.TaskUpdate
			if name != "" {
				upd.Name = &name
			}
			if estimate != "" {
				est, err := parseMinutes(estimate)
				if err != nil {
					return err
				}
				upd.EstimatedMinutes = &est
			}
			if upd.SessionPreference, err = optionalMinutes(session); err != nil {
				return err
			}
			upd.ClearPreference = clearSession
			updated, err := a.sched.UpdateTask(ctx, task.ID, upd)
			if err != nil {
				return err
			}
			return a.printTask(updated)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVarP(&estimate, "estimate", "e", "", "new estimated duration")
	cmd.Flags().StringVarP(&session, "session", "s", "", "new preferred session length")
	cmd.Flags().BoolVar(&clearSession, "clear-session", false, "forget the preferred session length")
	return cmd
}

func tasksRmCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm TASK",
		Short: "Delete a task and cancel its calendar events",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			task, err := a.findTask(ctx, args[0])
			if err != nil {
				return err
			}
			var cal scheduler.Calendar
			for _, s := range task.Sessions {
				if s.CalendarEventID != "" {
					if cal, err = a.calendar(ctx); err != nil {
						return err
					}
					break
				}
			}
			if err := a.sched.DeleteTask(ctx, cal, task.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %q\n", task.Name)
			return nil
		}),
	}
}

// findTask resolves a full ID or an unambiguous ID prefix.
func (a *app) findTask(ctx context.Context, ref string) (*model.Task, error) {
	if task, err := a.sched.GetTask(ctx, ref); err == nil {
		return task, nil
	}
	tasks, err := a.sched.ListTasks(ctx, "")
	if err != nil {
		return nil, err
	}
	var match *model.Task
	for _, t := range tasks {
		if len(ref) >= 4 && len(t.ID) >= len(ref) && t.ID[:len(ref)] == ref {
			if match != nil {
				return nil, errs.Invalid("task id %q is ambiguous", ref)
			}
			match = t
		}
	}
	if match == nil {
		return nil, errs.NotFound("task", ref)
	}
	return match, nil
}

func (a *app) printTask(t *model.Task) error {
	if a.opts.jsonOut {
		return a.printJSON(t)
	}
	fmt.Fprintf(a.out, "%s  %s\n", t.ID, t.Name)
	fmt.Fprintf(a.out, "  status:    %s\n", t.Status)
	fmt.Fprintf(a.out, "  estimate:  %s\n", minutes(t.EstimatedMinutes))
	fmt.Fprintf(a.out, "  remaining: %s\n", minutes(max(t.RemainingMinutes(), 0)))
	if t.SessionPreference != nil {
		fmt.Fprintf(a.out, "  session:   %s\n", minutes(*t.SessionPreference))
	}
	if t.Source != "" {
		fmt.Fprintf(a.out, "  source:    %s\n", t.Source)
	}
	printSessions(a.out, t.Sessions)
	return nil
}

func printSessions(out io.Writer, sessions []model.Session) {
	if len(sessions) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  SESSION\tWHEN\tLENGTH\tEVENT")
	for _, s := range sessions {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", shortID(s.ID), formatSpan(s.Start, s.End), minutes(s.Minutes), s.CalendarEventID)
	}
	w.Flush()
}

func formatSpan(start, end time.Time) string {
	start = start.Local()
	return fmt.Sprintf("%s %s-%s", start.Format("Mon Jan 2"), start.Format("15:04"), end.Local().Format("15:04"))
}

func minutes(m int) string {
	return (time.Duration(m) * time.Minute).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func optionalMinutes(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	m, err := parseMinutes(s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
