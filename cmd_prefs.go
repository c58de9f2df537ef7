package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/timebox/pkg/config"
)

func prefsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"config"},
		Short:   "Show or change working hours and session preferences",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(_ context.Context, a *app, _ []string) error {
			if a.opts.jsonOut {
				return a.printJSON(a.cfg)
			}
			fmt.Fprintf(a.out, "# %s\n", a.cfgPath)
			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return err
			}
			return enc.Close()
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting",
		Long:  "Changes one setting and saves the config file. Keys:\n  " + strings.Join(config.Keys, "\n  "),
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(_ context.Context, a *app, args []string) error {
			cfg, err := a.prefs.Update(args[0], args[1])
			if err != nil {
				return err
			}
			a.cfg = cfg
			fmt.Fprintf(a.out, "%s updated in %s\n", args[0], a.cfgPath)
			return nil
		}),
	})
	return cmd
}
