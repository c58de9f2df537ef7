package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/reconcile"
)

func reconcileCmd(opts *globalOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Drop sessions whose calendar event was deleted or cancelled",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			cal, err := a.calendar(ctx)
			if err != nil {
				return err
			}
			r := reconcile.New(a.sched)
			r.Logger = a.logger
			r.IncludePast = all
			report, err := r.Sweep(ctx, cal)
			if err != nil {
				return err
			}
			if a.opts.jsonOut {
				return a.printJSON(report)
			}
			printReport(a, report)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "also check sessions that already ended")
	return cmd
}

func watchCmd(opts *globalOptions) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			if schedule == "" {
				schedule = a.cfg.Reconcile.Schedule
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cal, err := a.calendar(ctx)
			if err != nil {
				return err
			}
			r := reconcile.New(a.sched)
			r.Logger = a.logger

			c := cron.New(cron.WithLogger(cron.PrintfLogger(a.logger)), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			_, err = c.AddFunc(schedule, func() {
				report, err := r.Sweep(ctx, cal)
				if errors.Is(err, errs.ErrUnauthenticated) {
					a.logger.Printf("reconcile: %v; stopping", err)
					stop()
					return
				}
				if err != nil {
					a.logger.Printf("reconcile: %v", err)
					return
				}
				if len(report.Removed) > 0 || report.Failed > 0 {
					printReport(a, report)
				}
				a.debugf("reconcile: checked %d sessions", report.Checked)
			})
			if err != nil {
				return errs.Invalid("reconcile schedule %q: %v", schedule, err)
			}

			a.logger.Printf("watching calendar %s on schedule %q", cal.CalendarID(), schedule)
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		}),
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule (default reconcile.schedule)")
	return cmd
}

func printReport(a *app, report reconcile.Report) {
	for _, rm := range report.Removed {
		fmt.Fprintf(a.out, "Removed session %s of %q (%s): event %s is gone\n",
			shortID(rm.SessionID), rm.TaskName, rm.Start.Local().Format("Mon Jan 2 15:04"), rm.EventID)
	}
	fmt.Fprintf(a.out, "Checked %d sessions, removed %d, %d lookups failed\n", report.Checked, len(report.Removed), report.Failed)
}
