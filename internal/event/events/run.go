package events

import "github.com/dshills/snippetide/internal/event/topic"

// Run event topics.
const (
	// TopicRunStart is published by the front-end to ask for a source file
	// to be run.
	TopicRunStart topic.Topic = "run.start"

	// TopicRunRequested is published by the language capability that
	// resolved a launch command for a RunStart.
	TopicRunRequested topic.Topic = "run.requested"

	// TopicRunOutput carries every OutputMessage produced by a runner.
	TopicRunOutput topic.Topic = "run.output"
)

// RunStart asks for SourceFile to be run.
type RunStart struct {
	// SourceFile is the absolute path of the snippet to run.
	SourceFile string

	// Language optionally names the language to use. When empty the
	// language is chosen by file extension.
	Language string

	// Command optionally overrides the language's launch command.
	Command string
}

// RunRequested carries a resolved launch command.
type RunRequested struct {
	SourceFile string
	Command    string
	Language   string
}

// OutputKind distinguishes what an OutputMessage reports.
type OutputKind string

// Output kinds.
const (
	// OutputLine is one line of process output.
	OutputLine OutputKind = "line"

	// OutputExit is the final "Process finished with exit code N" message.
	OutputExit OutputKind = "exit"

	// OutputDiagnostic reports a launch failure, read failure or forced stop.
	OutputDiagnostic OutputKind = "diagnostic"
)

// OutputMessage is one notification from a runner.
type OutputMessage struct {
	// Text is the message text exactly as it should be shown.
	Text string

	// Kind tags the message.
	Kind OutputKind

	// RunID identifies the run that produced the message.
	RunID string

	// ExitCode is set for OutputExit messages.
	ExitCode int
}
