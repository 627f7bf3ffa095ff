package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dropship-ops/opsdash/internal/jobs"
	"github.com/dropship-ops/opsdash/internal/queue"
)

// QueueDrainer processes pending sync-queue items.
type QueueDrainer interface {
	Process(ctx context.Context, limit int) (queue.ProcessSummary, error)
}

// QueueDrainJob executes TaskQueueDrain.
type QueueDrainJob struct {
	drainer QueueDrainer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewQueueDrainJob initialises the handler.
func NewQueueDrainJob(drainer QueueDrainer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QueueDrainJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDrainJob{drainer: drainer, logger: logger.With(slog.String("job", TaskQueueDrain)), metrics: metrics}
}

// Handle drains one batch. A paused queue is skipped quietly.
func (j *QueueDrainJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.drainer == nil {
		return errors.New("queue drain: handler not configured")
	}
	var payload QueueDrainPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("queue drain: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics.Track(TaskQueueDrain)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	summary, err := j.drainer.Process(ctx, payload.Limit)
	switch {
	case errors.Is(err, queue.ErrPaused):
		j.logger.Info("sync queue paused, skipping drain")
		return nil
	case errors.Is(err, queue.ErrPublisherMissing):
		j.logger.Warn("shopify not configured, skipping drain")
		return fmt.Errorf("queue drain: %v: %w", err, asynq.SkipRetry)
	case err != nil:
		j.logger.Error("queue drain failed", slog.Any("error", err))
		return err
	}

	j.metrics.AddItems(TaskQueueDrain, "synced", summary.Synced)
	j.metrics.AddItems(TaskQueueDrain, "failed", summary.Failed)
	if summary.Claimed > 0 {
		j.logger.Info("queue drain completed",
			slog.Int("claimed", summary.Claimed),
			slog.Int("synced", summary.Synced),
			slog.Int("failed", summary.Failed),
		)
	}
	return nil
}
