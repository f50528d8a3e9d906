package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"cpjudge/internal/judge/model"
	appErr "cpjudge/pkg/errors"
)

const defaultRedisKey = "cpjudge:judge_queue"

// RedisQueue is a Redis-list judge queue for deployments where sibling
// workers share one backlog.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(addr, password string, db int, key string) (*RedisQueue, error) {
	if key == "" {
		key = defaultRedisKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.QueueError, "connect to redis failed")
	}
	return &RedisQueue{client: client, key: key}, nil
}

// Enqueue pushes a JSON-encoded request onto the list tail.
func (q *RedisQueue) Enqueue(ctx context.Context, req model.JudgeRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "encode judge request failed")
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return appErr.Wrapf(err, appErr.QueueError, "enqueue judge request failed")
	}
	return nil
}

// Dequeue blocks on the list head up to timeout.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (model.JudgeRequest, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.JudgeRequest{}, false, nil
		}
		if ctx.Err() != nil {
			return model.JudgeRequest{}, false, ctx.Err()
		}
		return model.JudgeRequest{}, false, appErr.Wrapf(err, appErr.QueueError, "dequeue judge request failed")
	}
	if len(res) < 2 {
		return model.JudgeRequest{}, false, nil
	}

	var req model.JudgeRequest
	if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
		return model.JudgeRequest{}, false, appErr.Wrapf(err, appErr.QueueError, "decode judge request failed")
	}
	return req, true, nil
}

// Len returns the list length.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.QueueError, "queue length failed")
	}
	return int(n), nil
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
