package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/snippetide/internal/app"
	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/event/events"
)

// exitInterrupted is reported when a run is stopped by a signal or timeout.
const exitInterrupted = 130

type runFlags struct {
	language string
	command  string
	timeout  time.Duration
	quiet    bool
}

func newRunCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [FILE]",
		Short: "Run a source file",
		Long: `Run a source file with the language that handles its extension.

Without FILE, --language is required and a new snippet is created from the
language's template. --command replaces the language's launch command and
may use $SOURCE_FILE, $SOURCE_DIR, $SOURCE_NAME and $TEMP_DIR.

The exit code of snippetide is the exit code of the program.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var file string
			if len(args) == 1 {
				file = args[0]
			}
			return runSource(cmd, global, flags, file)
		},
	}

	cmd.Flags().StringVarP(&flags.language, "language", "l", "", "language to run the file with")
	cmd.Flags().StringVarP(&flags.command, "command", "c", "", "launch command overriding the language's")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "stop the program after this long (0 disables)")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "do not print the exit code line")
	return cmd
}

// runResult is the final message of a run.
type runResult struct {
	code       int
	diagnostic string
}

func runSource(cmd *cobra.Command, global *globalFlags, flags *runFlags, file string) error {
	if file == "" && flags.language == "" {
		return errors.New("a FILE or --language is required")
	}

	booter, application, err := global.boot(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = booter.Unboot() }()

	if file == "" {
		file, err = application.NewSnippet(flags.language)
		if err != nil {
			return err
		}
	} else if file, err = filepath.Abs(file); err != nil {
		return err
	}

	results := make(chan runResult, 1)
	sub := event.NewSubscriber(application.Bus())
	defer sub.Close()

	printer := newOutputPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.quiet)
	_, err = event.SubscribePayload(sub, events.TopicRunOutput, func(_ context.Context, msg events.OutputMessage) error {
		printer.print(msg)
		switch msg.Kind {
		case events.OutputExit:
			results <- runResult{code: msg.ExitCode}
		case events.OutputDiagnostic:
			results <- runResult{code: msg.ExitCode, diagnostic: msg.Text}
		}
		return nil
	}, event.WithPriority(event.PriorityHigh))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	if err := application.Run(ctx, file, flags.language, flags.command); err != nil {
		if errors.Is(err, app.ErrNoLanguage) {
			return fmt.Errorf("%w (pass --command or add a plugin to %s)", err, application.PluginsDir())
		}
		return err
	}

	select {
	case res := <-results:
		return exitFor(res, false)
	case <-ctx.Done():
		application.Stop()
		_ = application.Runner().Wait(context.Background())
		select {
		case res := <-results:
			return exitFor(res, true)
		default:
			return &ExitError{Code: exitInterrupted}
		}
	}
}

// exitFor maps the final message of a run to the command's result.
func exitFor(res runResult, interrupted bool) error {
	switch {
	case interrupted:
		return &ExitError{Code: exitInterrupted}
	case res.diagnostic != "":
		code := res.code
		if code <= 0 {
			code = 1
		}
		return &ExitError{Code: code}
	case res.code != 0:
		return &ExitError{Code: res.code}
	}
	return nil
}

// outputPrinter writes run output to the terminal.
type outputPrinter struct {
	out   io.Writer
	err   io.Writer
	quiet bool
}

func newOutputPrinter(out, errOut io.Writer, quiet bool) *outputPrinter {
	return &outputPrinter{out: out, err: errOut, quiet: quiet}
}

func (p *outputPrinter) print(msg events.OutputMessage) {
	switch msg.Kind {
	case events.OutputLine:
		fmt.Fprintln(p.out, msg.Text)
	case events.OutputExit:
		if p.quiet {
			return
		}
		style := SuccessStyle
		if msg.ExitCode != 0 {
			style = WarningStyle
		}
		fmt.Fprintln(p.err, style.Render(msg.Text))
	case events.OutputDiagnostic:
		fmt.Fprintln(p.err, ErrorStyle.Render(msg.Text))
	}
}
