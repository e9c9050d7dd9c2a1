package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default Redis queue parameters
const (
	DefaultQueueName = "estimates"
	popBlockInterval = time.Second
)

// RedisQueue is a Redis-backed implementation of Queue. Ready jobs live in
// a list consumed with BRPOP; delayed jobs wait in a sorted set scored by
// their ready time and are promoted by consumers.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue creates a RedisQueue from a redis URL and verifies the
// connection.
func NewRedisQueue(ctx context.Context, url, name string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if name == "" {
		name = DefaultQueueName
	}
	return &RedisQueue{client: client, name: name}, nil
}

// Compile-time interface check.
var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) readyKey() string   { return "queue:" + q.name + ":ready" }
func (q *RedisQueue) delayedKey() string { return "queue:" + q.name + ":delayed" }

// Enqueue makes a job available to workers immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	data, err := marshalJob(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.readyKey(), data).Err(); err != nil {
		return fmt.Errorf("%w: lpush: %v", ErrDispatchFailure, err)
	}
	return nil
}

// EnqueueDelayed makes a job available after the given delay.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}

	data, err := marshalJob(job)
	if err != nil {
		return err
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: readyAt, Member: data}).Err(); err != nil {
		return fmt.Errorf("%w: zadd: %v", ErrDispatchFailure, err)
	}
	return nil
}

// Dequeue blocks until a job is available or ctx is done. Each blocking
// pop is bounded so due delayed jobs are promoted promptly.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, popBlockInterval, q.readyKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // timed out, promote again
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("brpop: %w", err)
		}

		// BRPop returns [key, value].
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		return &job, nil
	}
}

// promoteDue moves delayed jobs whose ready time has passed onto the
// ready list.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore: %w", err)
	}

	for _, member := range due {
		// Only the consumer that wins the ZRem promotes the job, so a job
		// is never delivered twice.
		removed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey(), member).Err(); err != nil {
			return fmt.Errorf("lpush promoted: %w", err)
		}
	}
	return nil
}

// Close releases the underlying client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func marshalJob(job *Job) (string, error) {
	cp := *job
	if cp.EnqueuedAt.IsZero() {
		cp.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	return string(data), nil
}
