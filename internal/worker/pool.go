package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/agentic-support/internal/domain"
	"github.com/spec-kit/agentic-support/internal/observability"
	"github.com/spec-kit/agentic-support/internal/queue"
)

// JobSource is the worker's view of the dispatcher.
type JobSource interface {
	Next(ctx context.Context, timeout time.Duration) (queue.Delivery, error)
	Claim(ctx context.Context, jobID string) (*domain.Job, error)
	Finish(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID, excInfo string) error
}

// Config holds worker pool configuration.
type Config struct {
	Logger      *zap.Logger
	Jobs        JobSource
	Registry    *Registry
	Metrics     *observability.Metrics
	WorkerID    string
	Concurrency int
	PollTimeout time.Duration
}

// Pool runs registered tasks for deliveries pulled from a JobSource.
type Pool struct {
	logger      *zap.Logger
	jobs        JobSource
	registry    *Registry
	metrics     *observability.Metrics
	workerID    string
	concurrency int
	pollTimeout time.Duration
	wg          sync.WaitGroup
}

// NewPool creates a pool. Concurrency below one is treated as one.
func NewPool(cfg Config) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &Pool{
		logger:      logger,
		jobs:        cfg.Jobs,
		registry:    cfg.Registry,
		metrics:     cfg.Metrics,
		workerID:    cfg.WorkerID,
		concurrency: concurrency,
		pollTimeout: pollTimeout,
	}
}

// Run spawns the worker goroutines and blocks until ctx is cancelled and every
// goroutine has returned. A job already running when ctx is cancelled is
// allowed to finish.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("starting worker pool",
		zap.String("worker_id", p.workerID),
		zap.Int("concurrency", p.concurrency),
		zap.Strings("tasks", p.registry.Names()))

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, fmt.Sprintf("%s-%d", p.workerID, i))
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped", zap.String("worker_id", p.workerID))
}

func (p *Pool) loop(ctx context.Context, name string) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		delivery, err := p.jobs.Next(ctx, p.pollTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrNoDelivery) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("receive failed", zap.String("worker", name), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollTimeout):
			}
			continue
		}

		// Shutdown raced the receive: hand the job back untouched.
		if ctx.Err() != nil {
			p.requeue(context.WithoutCancel(ctx), name, delivery)
			return
		}

		p.process(context.WithoutCancel(ctx), name, delivery)
	}
}

func (p *Pool) process(ctx context.Context, name string, delivery queue.Delivery) {
	jobID := delivery.JobID()
	logger := p.logger.With(zap.String("worker", name), zap.String("job_id", jobID))

	job, err := p.jobs.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			logger.Warn("job record missing; dropping delivery")
			p.ack(ctx, logger, delivery)
			return
		}
		if errors.Is(err, queue.ErrJobCompleted) {
			logger.Info("job already completed; dropping redelivery", zap.Error(err))
			p.ack(ctx, logger, delivery)
			return
		}
		logger.Error("claim failed", zap.Error(err))
		p.requeue(ctx, name, delivery)
		return
	}
	logger = logger.With(zap.String("task", job.Task))

	start := time.Now()
	result, runErr := p.execute(ctx, job)

	var recordErr error
	status := domain.JobStatusFinished
	if runErr != nil {
		status = domain.JobStatusFailed
		recordErr = p.jobs.Fail(ctx, jobID, runErr.Error())
		logger.Warn("job failed", zap.Duration("duration", time.Since(start)), zap.Error(runErr))
	} else {
		recordErr = p.jobs.Finish(ctx, jobID, result)
		logger.Info("job finished", zap.Duration("duration", time.Since(start)))
	}

	if recordErr != nil {
		logger.Error("unable to record job outcome", zap.Error(recordErr))
		p.requeue(ctx, name, delivery)
		return
	}
	p.metrics.RecordJob(job.Task, string(status))
	p.ack(ctx, logger, delivery)
}

type jobIDKey struct{}

// JobIDFromContext returns the id of the job a task is running for.
func JobIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(jobIDKey{}).(string)
	return id, ok
}

// execute runs the task and encodes its result. Panics become errors.
func (p *Pool) execute(ctx context.Context, job *domain.Job) (result json.RawMessage, err error) {
	fn, ok := p.registry.Lookup(job.Task)
	if !ok {
		return nil, fmt.Errorf("unknown task %q", job.Task)
	}
	ctx = context.WithValue(ctx, jobIDKey{}, job.ID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	args := job.Args
	if len(args) == 0 {
		args = json.RawMessage("[]")
	}
	value, err := fn(ctx, args)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return encoded, nil
}

func (p *Pool) ack(ctx context.Context, logger *zap.Logger, delivery queue.Delivery) {
	if err := delivery.Ack(ctx); err != nil {
		logger.Error("ack failed", zap.Error(err))
	}
}

func (p *Pool) requeue(ctx context.Context, name string, delivery queue.Delivery) {
	if err := delivery.Requeue(ctx); err != nil {
		p.logger.Error("requeue failed",
			zap.String("worker", name),
			zap.String("job_id", delivery.JobID()),
			zap.Error(err))
	}
}
