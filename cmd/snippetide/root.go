package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/snippetide/internal/app"
	"github.com/dshills/snippetide/internal/config"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	root       string
	logLevel   string
	metrics    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "snippetide",
		Short: "Run code snippets through language plugins",
		Long: TitleStyle.Render("snippetide") + SubtitleStyle.Render(" - run code snippets through language plugins") + `

Languages are contributed by Lua plugins in the plugins directory of the
application root (~/.snippetide/plugins by default).

` + SubtitleStyle.Render("Examples:") + `
  snippetide run hello.py            Run a file with the language for .py
  snippetide run -l python           Run the Python template
  snippetide run main.go -c "go run $SOURCE_FILE"
  snippetide plugins                 List loaded plugins`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", app.Version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default is <root>/"+config.FileName+")")
	pf.StringVar(&flags.root, "root", "", "application root directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.metrics, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newRunCmd(flags),
		newPluginsCmd(flags),
		newNewCmd(flags),
		newCleanCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the configuration and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	path := f.configPath
	if path == "" && f.root != "" {
		path = filepath.Join(f.root, config.FileName)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if f.root != "" {
		cfg.App.Root = f.root
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.metrics != "" {
		cfg.Metrics.Addr = f.metrics
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// boot loads the configuration and boots the application with logs going
// to logOut.
func (f *globalFlags) boot(logOut io.Writer) (*app.Booter, *app.Application, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	booter := app.NewBooter()
	application, err := booter.Boot(app.BootOptions{
		Config:       cfg,
		LogWriter:    logOut,
		RunnerStderr: logOut,
	})
	if err != nil {
		return nil, nil, err
	}
	return booter, application, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snippetide %s\n", app.Version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
			return nil
		},
	}
}
