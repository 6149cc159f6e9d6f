package workflow

import (
	"context"
	"preview/internal/progress"
	"preview/internal/setup"
)

// RunSetup collects the descriptor from c and runs the job it describes.
// A cancelled setup ends the run before anything is sent to the server.
func (o *Orchestrator) RunSetup(ctx context.Context, c setup.Collector, observer progress.Observer) (*Result, error) {
	if c.IsCancelled() || ctx.Err() != nil {
		o.logger.Info("Preview setup cancelled")
		return &Result{Outcome: OutcomeCancelled}, nil
	}

	desc, err := c.Descriptor(ctx)
	if c.IsCancelled() || ctx.Err() != nil {
		o.logger.Info("Preview setup cancelled")
		return &Result{Outcome: OutcomeCancelled}, nil
	}
	if err != nil {
		o.logger.Warn("Preview setup failed", "error", err)
		return &Result{Outcome: OutcomeFailed}, err
	}

	return o.Run(ctx, desc.Job(), desc.WantArchive, observer)
}
