package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/timebox/pkg/errs"
)

var Version = "dev"

func main() {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "timebox",
		Short:         "Split tasks into work sessions and book them into free calendar time",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(rootCmd)

	rootCmd.AddCommand(loginCmd(opts))
	rootCmd.AddCommand(logoutCmd(opts))
	rootCmd.AddCommand(tasksCmd(opts))
	rootCmd.AddCommand(slotsCmd(opts))
	rootCmd.AddCommand(planCmd(opts))
	rootCmd.AddCommand(bookCmd(opts))
	rootCmd.AddCommand(unbookCmd(opts))
	rootCmd.AddCommand(importCmd(opts))
	rootCmd.AddCommand(reconcileCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(prefsCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errs.ErrUnauthenticated) {
			fmt.Fprintln(os.Stderr, "Run `timebox login` to connect your Google account.")
		}
		os.Exit(1)
	}
}
