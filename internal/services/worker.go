package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"community-campaigns/internal/blockchain"
	"community-campaigns/internal/config"
	"community-campaigns/pkg/logger"

	"github.com/hibiken/asynq"
)

// Worker processes registration tasks from the Redis queue
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor TaskProcessor
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

// NewWorker creates a new worker instance. It returns nil when Redis is
// disabled; the local queue runs its own workers.
func NewWorker(cfg *config.Config) (*Worker, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error().
					Err(err).
					Str("task_type", task.Type()).
					Str("error_kind", blockchain.ErrorKind(err)).
					Msg("[Worker] task failed")
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}, nil
}

// SetProcessor sets the function to process registration tasks
func (w *Worker) SetProcessor(processor TaskProcessor) {
	w.processor = processor
}

// Start begins processing tasks
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeRegisterCampaign, w.handleRegistrationTask)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[Worker] Starting async worker...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[Worker] Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	logger.Infof("[Worker] Shutting down...")
	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[Worker] Shutdown complete")
}

func (w *Worker) handleRegistrationTask(ctx context.Context, t *asynq.Task) error {
	var task RegistrationTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("decode registration task: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info().
		Str("campaign_id", task.CampaignID.String()).
		Int("participants", len(task.Snapshot.Participants)).
		Msg("[Worker] processing registration task")

	if w.processor == nil {
		logger.Warnf("[Worker] no processor set")
		return nil
	}

	if err := w.processor(ctx, &task); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return nil
}
