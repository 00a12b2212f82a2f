package pipeline

import (
	"context"

	"screening-pipeline/internal/queue"
	"screening-pipeline/pkg/models"
)

// TaskHandler adapts the orchestrator to the queue worker. A missing job is reported as
// permanent so the queue does not retry it.
func (o *Orchestrator) TaskHandler() queue.Handler {
	return func(ctx context.Context, task *queue.PipelineTask) (*models.BatchReport, error) {
		result, err := o.Run(ctx, task.JobID)
		if err != nil {
			if IsJobNotFound(err) {
				return nil, queue.Permanent(err)
			}
			return nil, err
		}
		return result.Report, nil
	}
}
