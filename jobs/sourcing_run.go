package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dropship-ops/opsdash/internal/jobs"
	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/sourcing"
)

// SourcingRunner starts sourcing runs.
type SourcingRunner interface {
	Run(ctx context.Context, trigger sourcing.Trigger) (sourcing.RunResult, error)
}

// SourcingRunJob executes TaskSourcingRun.
type SourcingRunJob struct {
	runner  SourcingRunner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSourcingRunJob initialises the handler.
func NewSourcingRunJob(runner SourcingRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SourcingRunJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourcingRunJob{runner: runner, logger: logger.With(slog.String("job", TaskSourcingRun)), metrics: metrics}
}

// Handle runs the sourcing pipeline once. A disabled schedule is not a
// failure. Runs are never retried by the queue since every attempt already
// has its own ledger row.
func (j *SourcingRunJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.runner == nil {
		return errors.New("sourcing run: handler not configured")
	}
	var payload SourcingRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("sourcing run: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	trigger := sourcing.Trigger(payload.Trigger)
	if trigger == "" {
		trigger = sourcing.TriggerScheduled
	}

	tracker := j.metrics.Track(TaskSourcingRun)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger.With(slog.String("trigger", string(trigger)))
	result, err := j.runner.Run(ctx, trigger)
	switch {
	case errors.Is(err, sourcing.ErrScheduleDisabled):
		logger.Info("scheduled sourcing disabled, skipping")
		return nil
	case errors.Is(err, httpx.ErrValidation):
		logger.Warn("sourcing criteria invalid", slog.Any("error", err))
		return fmt.Errorf("sourcing run: %v: %w", err, asynq.SkipRetry)
	case err != nil:
		logger.Error("sourcing run failed", slog.String("run_id", result.Run.ID.String()), slog.Any("error", err))
		return fmt.Errorf("sourcing run: %v: %w", err, asynq.SkipRetry)
	}

	run := result.Run
	j.metrics.AddItems(TaskSourcingRun, "imported", run.TotalImported)
	// TotalRejected already includes import failures.
	j.metrics.AddItems(TaskSourcingRun, "rejected", run.TotalRejected-run.ImportFailed)
	j.metrics.AddItems(TaskSourcingRun, "failed", run.ImportFailed)
	logger.Info("sourcing run completed",
		slog.String("run_id", run.ID.String()),
		slog.Int("found", run.TotalFound),
		slog.Int("accepted", run.TotalAccepted),
		slog.Int("imported", run.TotalImported),
		slog.Int("rejected", run.TotalRejected),
	)
	return nil
}
