package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/timebox/pkg/model"
	"github.com/harrisonrobin/timebox/pkg/orgmode"
	"github.com/harrisonrobin/timebox/pkg/scheduler"
	"github.com/harrisonrobin/timebox/pkg/taskwarrior"
)

func importCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import estimated tasks from Taskwarrior or Org files",
	}
	cmd.AddCommand(importTaskwarriorCmd(opts), importOrgCmd(opts))
	return cmd
}

func importTaskwarriorCmd(opts *globalOptions) *cobra.Command {
	var file, binary string
	cmd := &cobra.Command{
		Use:     "taskwarrior [FILTER...]",
		Aliases: []string{"tw"},
		Short:   "Import pending tasks that have an est UDA",
		Long: `Runs "task FILTER export", or reads a saved export with --file, and adds
every pending task with an "est" duration to the backlog. Tasks imported
before are skipped.`,
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			var tasks []taskwarrior.Task
			var err error
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				tasks, err = taskwarrior.ParseTasks(f)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
			} else {
				tw := taskwarrior.NewClient()
				if binary != "" {
					tw.Binary = binary
				}
				if tasks, err = tw.GetTasks(ctx, args); err != nil {
					return err
				}
			}
			a.debugf("taskwarrior returned %d tasks", len(tasks))
			return a.importDrafts(ctx, taskwarrior.Drafts(tasks, a.logger))
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read a `task export` JSON file instead of running task")
	cmd.Flags().StringVar(&binary, "task-binary", "", "Taskwarrior executable (default task)")
	return cmd
}

func importOrgCmd(opts *globalOptions) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "org FILE...",
		Short: "Import open TODO headings that have an :EFFORT: property",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app, args []string) error {
			headings, err := orgmode.ParseFiles(args)
			if err != nil {
				return err
			}
			if tag != "" {
				headings = orgmode.FilterTasks(headings, tag)
			}
			a.debugf("found %d headings in %d files", len(headings), len(args))
			return a.importDrafts(ctx, orgmode.Drafts(headings))
		}),
	}
	cmd.Flags().StringVar(&tag, "tag", "", "only headings carrying this tag")
	return cmd
}

func (a *app) importDrafts(ctx context.Context, drafts []model.Draft) error {
	res, err := a.sched.ImportTasks(ctx, drafts)
	if a.opts.jsonOut && err == nil {
		return a.printJSON(res)
	}
	printImport(a, res)
	return err
}

func printImport(a *app, res scheduler.ImportResult) {
	for _, t := range res.Created {
		fmt.Fprintf(a.out, "Added %s  %s (%s)\n", shortID(t.ID), t.Name, minutes(t.EstimatedMinutes))
	}
	fmt.Fprintf(a.out, "%d added, %d already imported, %d rejected\n", len(res.Created), res.Skipped, res.Rejected)
}
