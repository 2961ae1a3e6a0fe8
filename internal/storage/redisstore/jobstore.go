// Package redisstore implements the Job Store, Queue, and Lock interfaces
// against Redis: SET/GET with TTL for job records, RPUSH/BLPOP for the
// staged download queue, and a SetNX-guarded lock for single-flight
// template downloads.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
	"github.com/brightleaf/certforge/internal/models"
)

const jobKeyPrefix = "job:"
const externalIndexPrefix = "job:external:"

// JobStore persists BatchJob records in Redis under <namespace>:job:<id>,
// with a secondary external_id -> internal_id index for lookups.
type JobStore struct {
	client    *redis.Client
	namespace string
	logger    *common.Logger
	retry     common.RetryConfig
}

// NewJobStore constructs a Redis-backed Job Store.
func NewJobStore(client *redis.Client, namespace string, logger *common.Logger) *JobStore {
	return &JobStore{client: client, namespace: namespace, logger: logger, retry: common.DefaultRetryConfig}
}

func (s *JobStore) key(internalID string) string {
	return fmt.Sprintf("%s:%s%s", s.namespace, jobKeyPrefix, internalID)
}

func (s *JobStore) externalKey(externalID string) string {
	return fmt.Sprintf("%s:%s%s", s.namespace, externalIndexPrefix, externalID)
}

// Save persists job under its internal_id key, refreshing the external_id
// index, both with the given TTL.
func (s *JobStore) Save(ctx context.Context, job *models.BatchJob, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal batch job: %w", err)
	}

	return common.Retry(ctx, s.retry, func() error {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, s.key(job.InternalID), data, ttl)
		pipe.Set(ctx, s.externalKey(job.ExternalID), job.InternalID, ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to write job record: %w", err)
		}
		return nil
	})
}

// Get retrieves a job by internal_id. It returns (nil, nil) when absent.
func (s *JobStore) Get(ctx context.Context, internalID string) (*models.BatchJob, error) {
	var data string
	err := common.Retry(ctx, s.retry, func() error {
		v, getErr := s.client.Get(ctx, s.key(internalID)).Result()
		if getErr != nil {
			return getErr
		}
		data = v
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job record: %w", err)
	}

	var job models.BatchJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch job: %w", err)
	}
	return &job, nil
}

// GetByExternalID resolves external_id through the secondary index, then
// fetches the job by its internal_id. It returns (nil, nil) when absent.
func (s *JobStore) GetByExternalID(ctx context.Context, externalID string) (*models.BatchJob, error) {
	var internalID string
	err := common.Retry(ctx, s.retry, func() error {
		v, getErr := s.client.Get(ctx, s.externalKey(externalID)).Result()
		if getErr != nil {
			return getErr
		}
		internalID = v
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve external_id index: %w", err)
	}
	return s.Get(ctx, internalID)
}

// Delete removes the job record. The external_id index entry is left to
// expire on its own TTL; it only maps to an id, not sensitive state.
func (s *JobStore) Delete(ctx context.Context, internalID string) error {
	return common.Retry(ctx, s.retry, func() error {
		if err := s.client.Del(ctx, s.key(internalID)).Err(); err != nil {
			return fmt.Errorf("failed to delete job record: %w", err)
		}
		return nil
	})
}

var _ interfaces.JobStore = (*JobStore)(nil)
