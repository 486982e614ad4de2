// Package runner supervises the execution of a source file as an external
// process and streams its output onto the event bus.
//
// A Runner owns at most one process at a time. Start launches a run in a
// supervising goroutine; Stop cancels it without waiting for the OS to
// tear the process down. Every line the process writes becomes an
// events.OutputMessage on events.TopicRunOutput, in order, followed by a
// single final message: either
//
//	Process finished with exit code N
//
// on a normal exit, or a diagnostic when the run could not be launched,
// its output could not be read, or it was stopped.
//
// Start, Stop and IsRunning are meant to be called from one controlling
// goroutine. Stop waits for a line that is being published to finish, so
// it must not be called from a synchronous run.output handler; subscribe
// such handlers with event.DeliveryAsync.
package runner
