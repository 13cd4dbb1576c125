package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const taskEvaluateTriggers = "triggers:evaluate"

// Evaluator runs every trigger touched by a device change. The trigger
// service satisfies it.
type Evaluator interface {
	EvaluateForDevice(ctx context.Context, deviceID string) error
}

// Global instances - these should be initialized by the main application
var evaluator Evaluator

// SetGlobalInstances sets the trigger evaluator used by the workers
func SetGlobalInstances(e Evaluator) {
	evaluator = e
}

// EvaluationTaskPayload for tasks
type EvaluationTaskPayload struct {
	DeviceID string
}

// EnqueueEvaluation enqueues a trigger evaluation pass for one device
func EnqueueEvaluation(deviceID string) error {
	if asynqClient == nil {
		return fmt.Errorf("taskqueue: client not connected")
	}
	payload, _ := json.Marshal(EvaluationTaskPayload{DeviceID: deviceID})
	task := asynq.NewTask(taskEvaluateTriggers, payload)
	_, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Timeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("enqueuing evaluation for device %s: %w", deviceID, err)
	}
	return nil
}

// evaluateTriggersTask handles the task
func evaluateTriggersTask(ctx context.Context, t *asynq.Task) error {
	var payload EvaluationTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling task payload: %w", err)
	}
	if evaluator == nil {
		return fmt.Errorf("evaluator not initialized")
	}
	return evaluator.EvaluateForDevice(ctx, payload.DeviceID)
}
