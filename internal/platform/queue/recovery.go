package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// recoveryConsumer owns reclaimed entries until they are re-queued.
const recoveryConsumer = "recovery-agent"

// StartRecoveryRoutine polls the PEL for jobs whose worker died and
// re-queues them. It blocks until ctx is done.
func (r *RedisQueue) StartRecoveryRoutine(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Starting Redis Recovery Routine", "interval", interval, "maxAge", maxAge)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Recover(ctx, maxAge); err != nil && ctx.Err() == nil {
				r.logger.Error("Recovery routine failed", "error", err)
			}
		}
	}
}

// Recover claims every entry pending for longer than maxAge. Each job is
// published again with Attempts incremented, or moved to the dead-letter
// stream once it reaches MaxAttempts. It returns how many were handled.
func (r *RedisQueue) Recover(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := r.ensureGroup(ctx); err != nil {
		return 0, err
	}

	handled := 0
	start := "0-0"
	for {
		// XAUTOCLAIM in batches of 10.
		messages, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.cfg.Stream,
			Group:    r.cfg.Group,
			MinIdle:  maxAge,
			Start:    start,
			Count:    10,
			Consumer: recoveryConsumer,
		}).Result()
		if err != nil {
			return handled, err
		}

		for _, msg := range messages {
			if err := r.requeue(ctx, msg); err != nil {
				return handled, err
			}
			handled++
		}

		if next == "0-0" || len(messages) == 0 {
			break
		}
		start = next
	}

	if handled > 0 {
		r.logger.Info("Recovered stale jobs", "count", handled)
	}
	return handled, nil
}

func (r *RedisQueue) requeue(ctx context.Context, msg redis.XMessage) error {
	job, err := decodeJob(msg)
	if err != nil {
		r.logger.Error("Dropping malformed stale job", "msgID", msg.ID, "error", err)
		return r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, msg.ID).Err()
	}

	job.Attempts++
	target := r.cfg.Stream
	if job.Attempts >= r.cfg.MaxAttempts {
		target = r.cfg.DeadLetter
		r.logger.Warn("Stale job moved to dead letter stream", "jobID", job.ID, "attempts", job.Attempts)
	} else {
		r.logger.Warn("Stale job re-queued", "jobID", job.ID, "attempts", job.Attempts)
	}

	if err := r.add(ctx, target, job); err != nil {
		return err
	}
	return r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, msg.ID).Err()
}
