// Package queue is the job dispatcher: it issues job ids, keeps one Redis hash
// per job describing its state, and hands job ids to workers through a Broker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/agentic-support/internal/domain"
)

// Record field names.
const (
	fieldID         = "id"
	fieldTask       = "task"
	fieldArgs       = "args"
	fieldOrigin     = "origin"
	fieldStatus     = "status"
	fieldResult     = "result"
	fieldExcInfo    = "exc_info"
	fieldEnqueuedAt = "enqueued_at"
	fieldStartedAt  = "started_at"
	fieldEndedAt    = "ended_at"
)

// Config names the queue and bounds how long terminal records are kept.
type Config struct {
	Name       string
	KeyPrefix  string
	ResultTTL  time.Duration
	FailureTTL time.Duration
}

// Queue implements the dispatch gateway on top of Redis job records.
type Queue struct {
	client *redis.Client
	broker Broker
	cfg    Config
	now    func() time.Time
}

// New builds a queue. Records are stored in client; ids travel through broker.
func New(client *redis.Client, broker Broker, cfg Config) *Queue {
	return &Queue{
		client: client,
		broker: broker,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the queue name recorded as each job's origin.
func (q *Queue) Name() string {
	return q.cfg.Name
}

// Enqueue records a queued job for task with the given arguments and publishes
// its id. The returned id is a fresh UUID.
func (q *Queue) Enqueue(ctx context.Context, task string, args ...any) (string, error) {
	if args == nil {
		args = []any{}
	}
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode args for %s: %w", task, err)
	}

	jobID := uuid.NewString()
	key := q.jobKey(jobID)
	if err := q.client.HSet(ctx, key,
		fieldID, jobID,
		fieldTask, task,
		fieldArgs, string(encodedArgs),
		fieldOrigin, q.cfg.Name,
		fieldStatus, string(domain.JobStatusQueued),
		fieldEnqueuedAt, formatTime(q.now()),
	).Err(); err != nil {
		return "", fmt.Errorf("store job %s: %w", jobID, err)
	}

	if err := q.broker.Publish(ctx, jobID); err != nil {
		_ = q.client.Del(context.WithoutCancel(ctx), key).Err()
		return "", fmt.Errorf("publish job %s: %w", jobID, err)
	}
	return jobID, nil
}

// FetchJob loads the record for jobID. It returns domain.ErrJobNotFound when
// the record never existed or has expired; any other error means Redis could
// not be reached.
func (q *Queue) FetchJob(ctx context.Context, jobID string) (*domain.Job, error) {
	values, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, domain.ErrJobNotFound
	}
	return decodeJob(jobID, values)
}

// Ping checks both the record store and the broker.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return q.broker.Ping(ctx)
}

// Next waits up to timeout for a delivery from the broker.
func (q *Queue) Next(ctx context.Context, timeout time.Duration) (Delivery, error) {
	return q.broker.Next(ctx, timeout)
}

// ErrJobCompleted is returned by Claim for a job that already finished or failed.
var ErrJobCompleted = errors.New("job already completed")

// Claim marks jobID as started and returns its record. The record is watched
// so an expiry between the read and the write aborts the claim instead of
// recreating a partial record.
func (q *Queue) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	key := q.jobKey(jobID)
	var job *domain.Job
	err := q.client.Watch(ctx, func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(values) == 0 {
			return domain.ErrJobNotFound
		}
		job, err = decodeJob(jobID, values)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrJobCompleted, jobID, job.Status)
		}

		startedAt := q.now()
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldStatus, string(domain.JobStatusStarted),
				fieldStartedAt, formatTime(startedAt),
			)
			return nil
		}); err != nil {
			return err
		}
		job.Status = domain.JobStatusStarted
		job.StartedAt = &startedAt
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Finish stores result and expires the record after the result TTL.
func (q *Queue) Finish(ctx context.Context, jobID string, result json.RawMessage) error {
	return q.complete(ctx, jobID, q.cfg.ResultTTL,
		fieldStatus, string(domain.JobStatusFinished),
		fieldResult, string(result),
		fieldEndedAt, formatTime(q.now()),
	)
}

// Fail stores excInfo and expires the record after the failure TTL.
func (q *Queue) Fail(ctx context.Context, jobID, excInfo string) error {
	return q.complete(ctx, jobID, q.cfg.FailureTTL,
		fieldStatus, string(domain.JobStatusFailed),
		fieldExcInfo, excInfo,
		fieldEndedAt, formatTime(q.now()),
	)
}

func (q *Queue) complete(ctx context.Context, jobID string, ttl time.Duration, values ...any) error {
	key := q.jobKey(jobID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (q *Queue) jobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", q.cfg.KeyPrefix, jobID)
}

func decodeJob(jobID string, values map[string]string) (*domain.Job, error) {
	job := &domain.Job{
		ID:     jobID,
		Task:   values[fieldTask],
		Origin: values[fieldOrigin],
		Status: domain.JobStatus(values[fieldStatus]),
	}
	if raw := values[fieldArgs]; raw != "" {
		job.Args = json.RawMessage(raw)
	}
	if raw := values[fieldResult]; raw != "" {
		job.Result = json.RawMessage(raw)
	}
	if exc, ok := values[fieldExcInfo]; ok && exc != "" {
		job.ExcInfo = &exc
	}

	var err error
	if job.EnqueuedAt, err = parseTime(values[fieldEnqueuedAt]); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseTime(values[fieldStartedAt]); err != nil {
		return nil, err
	}
	if job.EndedAt, err = parseTime(values[fieldEndedAt]); err != nil {
		return nil, err
	}
	if job.Status == "" {
		return nil, errors.New("job record has no status")
	}
	return job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse job timestamp %q: %w", raw, err)
	}
	t = t.UTC()
	return &t, nil
}
