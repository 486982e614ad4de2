package app

import (
	"context"

	"github.com/dshills/snippetide/internal/event"
	"github.com/dshills/snippetide/internal/event/events"
	"github.com/dshills/snippetide/internal/runner"
)

// startController subscribes the run controller: every run.requested
// event restarts the runner with the resolved command.
func (a *Application) startController() error {
	sub := event.NewSubscriber(a.bus)
	_, err := event.SubscribePayload(sub, events.TopicRunRequested, a.handleRunRequested,
		event.WithPriority(event.PriorityHigh))
	if err != nil {
		_ = sub.Close()
		return err
	}
	a.controller = sub
	return nil
}

func (a *Application) handleRunRequested(_ context.Context, req events.RunRequested) error {
	rr, err := runner.NewRunRequest(req.SourceFile, req.Command)
	if err != nil {
		a.logger.Error("Invalid run request", "source", req.SourceFile, "command", req.Command, "err", err)
		return err
	}

	id := a.runner.Start(rr)
	a.runs.Add(1)
	a.logger.Debug("Run started", "run", id, "language", req.Language, "source", rr.SourceFile)
	return nil
}
