package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dontdude/testbox/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Config names the Redis keys a queue works with.
type Config struct {
	Addr string
	// Stream holds pending grading jobs.
	Stream string
	// Group is the consumer group shared by all workers.
	Group string
	// Results is the pub/sub channel verdicts are broadcast on.
	Results string
	// DeadLetter receives jobs that were reclaimed MaxAttempts times.
	DeadLetter  string
	MaxAttempts int
}

// RedisQueue implements domain.JobQueue using Redis Streams.
type RedisQueue struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// Ensure RedisQueue satisfies the interface
var _ domain.JobQueue = (*RedisQueue)(nil)

// NewRedisQueue returns a new Redis-backed queue adapter.
// It panics if Redis cannot be reached (fail-fast).
func NewRedisQueue(cfg Config, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = cfg.Stream + ":dead"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})

	// Fail-fast ping check
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("failed to connect to redis: %v", err))
	}

	return &RedisQueue{
		client: rdb,
		cfg:    cfg,
		logger: logger,
	}
}

// Close releases the Redis connection pool.
func (r *RedisQueue) Close() error {
	return r.client.Close()
}

// Publish enqueues a job to the Redis stream using XADD (Producer)
func (r *RedisQueue) Publish(ctx context.Context, job domain.Job) error {
	return r.add(ctx, r.cfg.Stream, job)
}

func (r *RedisQueue) add(ctx context.Context, stream string, job domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	// "*" lets Redis generate a timestamp-based ID.
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"job": data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Subscribe returns a channel of jobs using XREADGROUP (Consumer).
// The channel is closed when ctx is done.
func (r *RedisQueue) Subscribe(ctx context.Context) (<-chan domain.Job, error) {
	// 1. Ensure the Consumer Group exists. Starting at "0" picks up jobs
	// published before the first worker came up.
	if err := r.ensureGroup(ctx); err != nil {
		return nil, err
	}

	// 2. Spawn a background listener
	outCh := make(chan domain.Job)
	consumer := consumerName()

	go func() {
		defer close(outCh)

		for {
			if ctx.Err() != nil {
				return
			}

			// Block for a bounded time so cancellation is noticed.
			streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    r.cfg.Group,
				Consumer: consumer,
				Streams:  []string{r.cfg.Stream, ">"},
				Count:    1,
				Block:    2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				r.logger.Error("Redis read error", "error", err)
				time.Sleep(1 * time.Second) // Backoff
				continue
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					job, err := decodeJob(msg)
					if err != nil {
						r.logger.Error("Dropping malformed job", "msgID", msg.ID, "error", err)
						_ = r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, msg.ID).Err()
						continue
					}

					select {
					case outCh <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return outCh, nil
}

func (r *RedisQueue) ensureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.cfg.Stream, r.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// consumerName is unique per process (hostname-pid).
func consumerName() string {
	host, _ := os.Hostname()
	if host == "" {
		host = "consumer"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func decodeJob(msg redis.XMessage) (domain.Job, error) {
	var job domain.Job
	val, ok := msg.Values["job"].(string)
	if !ok {
		return job, errors.New("missing job field")
	}
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return job, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	// Capture the Redis Stream ID so we can ACK later
	job.RawID = msg.ID
	return job, nil
}

// Acknowledge confirms processing using XACK.
func (r *RedisQueue) Acknowledge(ctx context.Context, rawID string) error {
	return r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, rawID).Err()
}

// Broadcast publishes one grading event on the results channel.
func (r *RedisQueue) Broadcast(ctx context.Context, result domain.JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return r.client.Publish(ctx, r.cfg.Results, data).Err()
}

// SubscribeResults streams grading events published by any worker.
func (r *RedisQueue) SubscribeResults(ctx context.Context) (<-chan domain.JobResult, error) {
	pubsub := r.client.Subscribe(ctx, r.cfg.Results)

	// Wait for confirmation that we are subscribed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to results: %w", err)
	}

	outCh := make(chan domain.JobResult)

	go func() {
		defer close(outCh)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var result domain.JobResult
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					r.logger.Error("Failed to unmarshal result", "error", err)
					continue
				}

				select {
				case outCh <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return outCh, nil
}
