package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/timebox/pkg/auth"
	"github.com/harrisonrobin/timebox/pkg/google"
)

func loginCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize timebox with Google Calendar",
		Long: `Runs the OAuth flow in your browser and stores the token for the
current profile. Place the client credentials.json from the Google Cloud
console next to the config file first.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, _ []string) error {
			oauthCfg, err := auth.GetConfig(a.configDir(), google.Scopes)
			if err != nil {
				return err
			}
			if err := auth.Login(ctx, oauthCfg, a.tokenPath(), a.out); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			cal, err := a.calendar(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Connected to calendar %s as profile %q\n", cal.CalendarID(), a.cfg.Calendar.Profile)
			return nil
		}),
	}
}

func logoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token of the current profile",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(_ context.Context, a *app, _ []string) error {
			if err := auth.Logout(a.tokenPath()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Removed token %s\n", a.tokenPath())
			return nil
		}),
	}
}
