package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/snippetide/internal/app"
)

func newCleanCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the temporary directory",
		Long: `Delete the temporary directory left behind by a run that did not shut
down cleanly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			dir, err := cfg.TempDir()
			if err != nil {
				return err
			}
			if err := app.CleanTemp(dir, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Removed ")+dir)
			return nil
		},
	}
}
