// Package process owns a single child process for the runner.
//
// A Handle wraps an exec.Cmd with:
//
//   - an os.Pipe for standard output (optionally shared with stderr), so
//     the read end outlives Wait and late lines can still be drained
//   - its own process group, so a forced kill also reaches grandchildren
//     that would otherwise keep the pipe open
//   - exit tracking through a Done channel and ExitCode
//
// Typical use:
//
//	h, err := process.Start("run-1", []string{"python3", "main.py"}, process.Options{Dir: dir})
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	lines := process.NewLineReader(h.Stdout())
//	go lines.Run()
//	for line := range lines.Lines() {
//	    fmt.Println(line)
//	}
//	<-h.Done()
//	fmt.Printf("exit code: %d\n", h.ExitCode())
package process
