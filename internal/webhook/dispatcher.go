package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeDeliver is the asynq task type for webhook delivery.
const TaskTypeDeliver = "webhook:deliver"

// NewDeliverTask wraps the event in an asynq task.
func NewDeliverTask(event Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDeliver, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// AsynqDispatcher enqueues delivery tasks onto the Redis-backed queue.
// Retry of failed deliveries is queue policy and invisible to callers.
type AsynqDispatcher struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewAsynqDispatcher constructs the dispatcher.
func NewAsynqDispatcher(client *asynq.Client, logger *slog.Logger) *AsynqDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqDispatcher{client: client, logger: logger}
}

// Notify enqueues the event for delivery.
func (d *AsynqDispatcher) Notify(ctx context.Context, event Event) error {
	task, err := NewDeliverTask(event)
	if err != nil {
		return fmt.Errorf("webhook: encode event: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("webhook: enqueue: %w", err)
	}
	d.logger.Debug("webhook event queued",
		slog.String("task_id", info.ID),
		slog.String("event", event.Type),
		slog.String("org", event.OrgID))
	return nil
}
