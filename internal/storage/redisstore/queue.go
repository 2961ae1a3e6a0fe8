package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
)

// Queue is a Redis list used as a FIFO by the staged (queue-drain)
// orchestration layout: RPUSH on the producer side, BLPOP on the worker
// side.
type Queue struct {
	client    *redis.Client
	namespace string
	logger    *common.Logger
	retry     common.RetryConfig
}

// NewQueue constructs a Redis-backed Queue.
func NewQueue(client *redis.Client, namespace string, logger *common.Logger) *Queue {
	return &Queue{client: client, namespace: namespace, logger: logger, retry: common.DefaultRetryConfig}
}

func (q *Queue) key(queueName string) string {
	return fmt.Sprintf("%s:queue:%s", q.namespace, queueName)
}

// Push appends payload to the tail of the named queue.
func (q *Queue) Push(ctx context.Context, queueName string, payload []byte) error {
	return common.Retry(ctx, q.retry, func() error {
		if err := q.client.RPush(ctx, q.key(queueName), payload).Err(); err != nil {
			return fmt.Errorf("failed to push to queue %s: %w", queueName, err)
		}
		return nil
	})
}

// BlockingPop pops from the head of the named queue, blocking up to wait.
// It returns (nil, nil) on timeout, distinguishing "nothing to do" from an
// error so callers can loop without treating a timeout as a failure. The
// blocking wait itself is not retried: a timeout is the queue's normal
// empty-queue signal, not a transient fault.
func (q *Queue) BlockingPop(ctx context.Context, queueName string, wait time.Duration) ([]byte, error) {
	result, err := q.client.BLPop(ctx, wait, q.key(queueName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from queue %s: %w", queueName, err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

var _ interfaces.Queue = (*Queue)(nil)
