package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/snippetide/internal/app"
	"github.com/dshills/snippetide/internal/plugin"
)

func newNewCmd(global *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "new LANGUAGE [FILE]",
		Short: "Write a language's template to a file",
		Long: `Write the template of LANGUAGE to FILE. Without FILE the template is
written to "snippet" plus the language's first extension in the current
directory.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			booter, application, err := global.boot(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = booter.Unboot() }()

			lang, ok := application.Plugins().Language(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", app.ErrNoLanguage, args[0])
			}

			path := "snippet" + plugin.DefaultExtension(lang)
			if len(args) == 2 {
				path = args[1]
			}

			flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if !force {
				flag |= os.O_EXCL
			}
			f, err := os.OpenFile(path, flag, 0o644)
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err != nil {
				return err
			}
			if _, err := f.WriteString(lang.Template()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Created ")+path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
