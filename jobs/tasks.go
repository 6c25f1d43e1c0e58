package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/keyfold/keyfold/internal/jobs"
	"github.com/keyfold/keyfold/internal/webhook"
)

// QueueDefault is the default queue name for background jobs.
const QueueDefault = "default"

// NewWebhookDeliverHandler builds the asynq handler that posts queued
// webhook events to org endpoints. A malformed payload is dropped rather
// than retried; delivery failures return the error so asynq retries per
// task policy.
func NewWebhookDeliverHandler(deliverer *webhook.Deliverer, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("webhook_deliver")
		var event webhook.Event
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			logger.Error("webhook payload decode", slog.Any("error", err))
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		if err := deliverer.Deliver(ctx, event); err != nil {
			return tracker.End(err)
		}
		logger.Info("webhook delivered",
			slog.String("event", event.Type),
			slog.String("org", event.OrgID))
		return tracker.End(nil)
	}
}
