package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/greengoods/api/internal/model"
)

// ErrNotFound is returned when a job does not exist in the store.
var ErrNotFound = errors.New("job not found")

// JobStore is the durable, per-user keyed job storage. Every write
// replaces the whole record, so a reader never observes a partial update.
// Three key families:
//
//	job:{id}                      JSON job record
//	jobs:user:{addr}              ZSET of job IDs scored by CreatedAt (FIFO)
//	jobs:active:{addr}:{workId}   idempotency reservation → job ID
//	jobs:users                    SET of known user addresses
type JobStore struct {
	redis     *redis.Client
	retention time.Duration
}

// NewJobStore creates a new job store
func NewJobStore(redisClient *redis.Client, retention time.Duration) *JobStore {
	return &JobStore{redis: redisClient, retention: retention}
}

func jobKey(id string) string          { return "job:" + id }
func userKey(addr string) string       { return "jobs:user:" + addr }
func activeKey(addr, cw string) string { return fmt.Sprintf("jobs:active:%s:%s", addr, cw) }

const usersKey = "jobs:users"

// Reserve claims the (userAddress, clientWorkId) pair for jobID. When the
// pair is already claimed it returns the owning job ID and false; the
// caller must treat the enqueue as a no-op against that job.
func (s *JobStore) Reserve(ctx context.Context, addr, clientWorkID, jobID string) (string, bool, error) {
	key := activeKey(addr, clientWorkID)
	ok, err := s.redis.SetNX(ctx, key, jobID, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to reserve work id: %w", err)
	}
	if ok {
		return jobID, true, nil
	}
	owner, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			// Reservation released between SETNX and GET; retry once.
			return s.Reserve(ctx, addr, clientWorkID, jobID)
		}
		return "", false, fmt.Errorf("failed to read reservation: %w", err)
	}
	return owner, false, nil
}

// Release frees the idempotency reservation for a pair, allowing the same
// logical work to be enqueued again.
func (s *JobStore) Release(ctx context.Context, addr, clientWorkID string) error {
	return s.redis.Del(ctx, activeKey(addr, clientWorkID)).Err()
}

// Put replaces the whole job record atomically and maintains the user
// indexes. Terminal records get the retention TTL; landed jobs keep their
// reservation (re-enqueues resolve to them), failed and cancelled jobs
// release it.
func (s *JobStore) Put(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ttl := time.Duration(0)
	if job.Status.IsTerminal() {
		ttl = s.retention
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, ttl)
	pipe.ZAdd(ctx, userKey(job.UserAddress), redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	})
	pipe.SAdd(ctx, usersKey, job.UserAddress)

	switch {
	case job.Status.Landed():
		// The reservation outlives the job record so a stale device
		// re-enqueueing after retention creates a fresh conflict check
		// rather than a blind dispatch.
		pipe.Expire(ctx, activeKey(job.UserAddress, job.ClientWorkID), 2*s.retention)
	case job.Status.IsTerminal():
		pipe.Del(ctx, activeKey(job.UserAddress, job.ClientWorkID))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Get fetches one job record.
func (s *JobStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// ListByUser returns the user's jobs in enqueue (FIFO) order, optionally
// filtered by status. Records already expired out of retention are
// dropped from the index as a side effect.
func (s *JobStore) ListByUser(ctx context.Context, addr string, statuses ...model.JobStatus) ([]*model.Job, error) {
	ids, err := s.redis.ZRange(ctx, userKey(addr), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	var jobs []*model.Job
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.redis.ZRem(ctx, userKey(addr), id)
				continue
			}
			return nil, err
		}
		if len(statuses) > 0 && !containsStatus(statuses, job.Status) {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ListUsers returns every address that has ever enqueued a job.
func (s *JobStore) ListUsers(ctx context.Context) ([]string, error) {
	users, err := s.redis.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Delete removes a job record and its index entries.
func (s *JobStore) Delete(ctx context.Context, job *model.Job) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, jobKey(job.ID))
	pipe.ZRem(ctx, userKey(job.UserAddress), job.ID)
	pipe.Del(ctx, activeKey(job.UserAddress, job.ClientWorkID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func containsStatus(statuses []model.JobStatus, s model.JobStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
