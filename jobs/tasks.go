package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSourcingRun executes one sourcing run.
	TaskSourcingRun = "sourcing:run"
	// TaskQueueDrain pushes pending sync-queue items to Shopify.
	TaskQueueDrain = "queue:drain"
)

// SourcingRunPayload selects the trigger recorded on the run.
type SourcingRunPayload struct {
	Trigger string `json:"trigger"`
}

// QueueDrainPayload bounds one drain; zero means the configured batch size.
type QueueDrainPayload struct {
	Limit int `json:"limit"`
}

// NewSourcingRunTask constructs a sourcing run task. Only one run may be
// queued at a time.
func NewSourcingRunTask(trigger string) (*asynq.Task, error) {
	switch trigger {
	case "manual", "scheduled":
	default:
		return nil, fmt.Errorf("jobs: unknown sourcing trigger %q", trigger)
	}
	body, err := json.Marshal(SourcingRunPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSourcingRun, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Unique(30*time.Minute),
	), nil
}

// NewQueueDrainTask constructs a queue drain task.
func NewQueueDrainTask(limit int) (*asynq.Task, error) {
	if limit < 0 {
		return nil, fmt.Errorf("jobs: negative drain limit %d", limit)
	}
	body, err := json.Marshal(QueueDrainPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQueueDrain, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(2),
		asynq.Timeout(15*time.Minute),
		asynq.Unique(5*time.Minute),
	), nil
}
