package taskqueue

import (
	"log"

	"github.com/hibiken/asynq"
)

var (
	asynqClient *asynq.Client
	asynqMux    = asynq.NewServeMux()
	asynqSrv    *asynq.Server
)

// Connect opens the queue client. Callers enqueue through it immediately,
// so it must be connected before any socket or broker handler runs.
func Connect(redisAddr string) {
	asynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
}

// StartWorkers runs the Asynq worker pool; blocks until the server stops
func StartWorkers(redisAddr string) {
	asynqMux.HandleFunc(taskEvaluateTriggers, evaluateTriggersTask)
	asynqSrv = asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{Concurrency: 10})
	if err := asynqSrv.Run(asynqMux); err != nil {
		log.Fatalf("taskqueue: failed to start workers: %v", err)
	}
}

// StopWorkers stops workers
func StopWorkers() {
	if asynqSrv != nil {
		asynqSrv.Stop()
	}
	if asynqClient != nil {
		asynqClient.Close()
		asynqClient = nil
	}
}
