package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPluginsCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List loaded plugins and the languages they provide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			booter, application, err := global.boot(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = booter.Unboot() }()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render("Plugins")+SubtitleStyle.Render(" ("+application.PluginsDir()+")"))

			plugins := application.Plugins().Plugins()
			if len(plugins) == 0 {
				fmt.Fprintln(out, SubtitleStyle.Render("  none"))
			}
			for _, p := range plugins {
				fmt.Fprintf(out, "  %s %s\n", CmdStyle.Render(p.Name()), SubtitleStyle.Render(p.Version().String()))
				for _, lang := range p.Languages() {
					fmt.Fprintf(out, "    %-12s %s\n", lang.Name(), strings.Join(lang.Extensions(), " "))
				}
			}

			report := application.ScanReport()
			if len(report.Diagnostics) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, WarningStyle.Render(fmt.Sprintf("%d plugin(s) failed to load", len(report.Diagnostics))))
				for _, d := range report.Diagnostics {
					fmt.Fprintln(out, "  "+ErrorStyle.Render(d.String()))
				}
			}
			if report.WalkErr != nil {
				fmt.Fprintln(out, "  "+ErrorStyle.Render(report.WalkErr.Error()))
			}
			return nil
		},
	}
}
