package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker on the task queue.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(IngestWorkflow)
	w.RegisterActivity(IngestFragmentsActivity)
	w.RegisterActivity(IngestTextActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}
