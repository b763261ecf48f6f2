// Package queue provides job queue abstractions for transciphering requests.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Common errors.
var (
	ErrQueueEmpty     = errors.New("queue is empty")
	ErrJobNotFound    = errors.New("job not found")
	ErrConnectionLost = errors.New("queue connection lost")
)

// JobStatus represents the state of a job.
type JobStatus uint8

const (
	StatusPending JobStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", uint8(s))
}

// Job represents a transciphering request: decrypt Block under the round keys
// stored for Size, apply Workload and store the bits under ResultName.
type Job struct {
	ID         string    `json:"id"`
	Size       string    `json:"size"`
	Block      string    `json:"block"`
	Workload   string    `json:"workload"`
	ResultName string    `json:"result_name,omitempty"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Queue defines the interface for job queue operations.
type Queue interface {
	// Push adds a job to the queue.
	Push(ctx context.Context, job *Job) error
	// Pop retrieves and removes the next job from the queue, blocking until one is available.
	Pop(ctx context.Context) (*Job, error)
	// Update updates job status.
	Update(ctx context.Context, job *Job) error
	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*Job, error)
	// Close closes the queue connection.
	Close() error
}

// DefaultJobTTL is how long job records are kept when RedisConfig.JobTTL is zero.
const DefaultJobTTL = 24 * time.Hour

// RedisQueue implements Queue using Redis. Pending job IDs live in a list,
// job records in keys with a TTL.
type RedisQueue struct {
	client    *redis.Client
	queueKey  string
	jobPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// JobTTL bounds the lifetime of job records (transciphering results are
	// stored elsewhere, records only track status).
	JobTTL time.Duration
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(cfg RedisConfig, queueName string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	q := NewRedisQueueWithClient(client, queueName)
	if cfg.JobTTL > 0 {
		q.ttl = cfg.JobTTL
	}
	return q, nil
}

// NewRedisQueueWithClient wraps an existing client. Queues with different
// names share job records but not pending lists.
func NewRedisQueueWithClient(client *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{
		client:    client,
		queueKey:  "transcipher:queue:" + queueName,
		jobPrefix: "transcipher:job:",
		ttl:       DefaultJobTTL,
	}
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueKey).Result()
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Status = StatusPending

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, q.jobPrefix+job.ID, data, q.ttl)
	pipe.LPush(ctx, q.queueKey, job.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push job: %w", err)
	}

	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	result, err := q.client.BRPop(ctx, 0, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrConnectionLost
		}
		return nil, fmt.Errorf("pop job: %w", err)
	}

	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}

	return q.Get(ctx, result[1])
}

func (q *RedisQueue) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	// XX: never resurrect an expired or unknown job.
	ok, err := q.client.SetXX(ctx, q.jobPrefix+job.ID, data, q.ttl).Result()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if !ok {
		return ErrJobNotFound
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// MemoryQueue implements Queue in process, for tests and single-node runs.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]Job
	pending chan string
	closed  bool
	done    chan struct{}
}

// NewMemoryQueue creates an in-memory queue holding at most capacity pending jobs.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		jobs:    make(map[string]Job),
		pending: make(chan string, capacity),
		done:    make(chan struct{}),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, job *Job) error {
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Status = StatusPending

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrConnectionLost
	}
	q.jobs[job.ID] = *job
	q.mu.Unlock()

	select {
	case q.pending <- job.ID:
		return nil
	case <-q.done:
		return ErrConnectionLost
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (*Job, error) {
	select {
	case id := <-q.pending:
		return q.Get(ctx, id)
	case <-q.done:
		return nil, ErrConnectionLost
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	q.jobs[job.ID] = *job
	return nil
}

func (q *MemoryQueue) Get(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

// Len returns the number of pending jobs.
func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.pending)), nil
}

// Close stops the queue. Later pushes and pops return ErrConnectionLost.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
