package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"community-campaigns/internal/blockchain"
	"community-campaigns/internal/config"
	"community-campaigns/pkg/logger"

	"github.com/hibiken/asynq"
)

var (
	ErrQueueFull   = errors.New("task queue is full")
	ErrQueueClosed = errors.New("task queue is closed")
)

// TaskProcessor handles one registration task.
type TaskProcessor func(ctx context.Context, task *RegistrationTask) error

// TaskQueue defines the interface for registration task dispatch
type TaskQueue interface {
	// Enqueue hands a task off without waiting for it to run
	Enqueue(task *RegistrationTask) error
	// Durable reports whether queued tasks survive a process restart
	Durable() bool
	// Close gracefully shuts down the queue
	Close() error
}

// NewTaskQueue picks the Redis-backed queue when Redis is configured and
// reachable, and the in-process queue otherwise.
func NewTaskQueue(cfg *config.Config, processor TaskProcessor) TaskQueue {
	if cfg.Redis.Enabled {
		queue, err := NewAsyncQueue(&cfg.Redis)
		if err != nil {
			logger.Warnf("[TaskQueue] Redis unavailable, falling back to local queue: %v", err)
		} else {
			logger.Infof("[TaskQueue] Async queue initialized with Redis")
			return queue
		}
	}

	logger.Infof("[TaskQueue] Local queue initialized (workers=%d)", cfg.Worker.Concurrency)
	return NewLocalQueue(cfg.Worker.Concurrency, cfg.Worker.QueueSize, processor)
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

// Enqueue adds a registration task to the async queue. asynq never retries
// it: the ledger client owns retries, and a second registration of the
// same campaign must not happen.
func (q *AsyncQueue) Enqueue(task *RegistrationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeRegisterCampaign, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(0),
		asynq.TaskID("register:"+task.CampaignID.String()),
	)
	if err != nil {
		return err
	}

	logger.Info().
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Str("campaign_id", task.CampaignID.String()).
		Msg("registration task enqueued")
	return nil
}

func (q *AsyncQueue) Durable() bool {
	return true
}

// Close closes the async queue client
func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// TaskFailure is a registration task that ended in an error.
type TaskFailure struct {
	Task *RegistrationTask
	Err  error
}

// LocalQueue runs registration tasks on a fixed pool of goroutines. Failed
// tasks are reported on Failures; when nobody drains it the report is
// dropped, the processor has already logged it.
type LocalQueue struct {
	tasks     chan *RegistrationTask
	failures  chan TaskFailure
	processor TaskProcessor
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewLocalQueue starts workers goroutines reading from a buffer of size tasks.
func NewLocalQueue(workers, size int, processor TaskProcessor) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}

	q := &LocalQueue{
		tasks:     make(chan *RegistrationTask, size),
		failures:  make(chan TaskFailure, size),
		processor: processor,
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.run()
	}
	return q
}

// Enqueue never blocks; a saturated buffer yields ErrQueueFull.
func (q *LocalQueue) Enqueue(task *RegistrationTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *LocalQueue) Durable() bool {
	return false
}

// Failures returns the channel failed tasks are reported on. It is closed
// once Close has drained the queue.
func (q *LocalQueue) Failures() <-chan TaskFailure {
	return q.failures
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	close(q.failures)
	return nil
}

func (q *LocalQueue) run() {
	defer q.wg.Done()

	for task := range q.tasks {
		err := q.process(task)
		if err == nil {
			continue
		}

		select {
		case q.failures <- TaskFailure{Task: task, Err: err}:
		default:
			logger.Debug().
				Str("campaign_id", task.CampaignID.String()).
				Str("error_kind", blockchain.ErrorKind(err)).
				Msg("failure channel full, dropping report")
		}
	}
}

func (q *LocalQueue) process(task *RegistrationTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("registration task panicked: %v", r)
			logger.Error().
				Str("campaign_id", task.CampaignID.String()).
				Interface("panic", r).
				Msg("registration task panicked")
		}
	}()

	if q.processor == nil {
		logger.Warnf("[LocalQueue] no processor set, dropping task for campaign %s", task.CampaignID)
		return nil
	}
	return q.processor(context.Background(), task)
}
