package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeDrain asks the manager to drain one user's queue.
	TaskTypeDrain = "queue:drain"

	// QueueDrain is the asynq queue drain tasks run on.
	QueueDrain = "drain"
)

// DrainScheduler schedules a future drain pass for one user. Backoff
// retries and deferred confirmation rechecks go through here so the wakeup
// survives a process restart.
type DrainScheduler interface {
	ScheduleDrain(ctx context.Context, userAddress string, delay time.Duration) error
}

type drainPayload struct {
	UserAddress string `json:"userAddress"`
}

// AsynqScheduler implements DrainScheduler on an asynq client.
type AsynqScheduler struct {
	client *asynq.Client
}

// NewAsynqScheduler creates a new scheduler
func NewAsynqScheduler(client *asynq.Client) *AsynqScheduler {
	return &AsynqScheduler{client: client}
}

// ScheduleDrain enqueues a delayed drain task. The task ID buckets by user
// and due time so a burst of failures for one user collapses into a single
// wakeup.
func (s *AsynqScheduler) ScheduleDrain(ctx context.Context, userAddress string, delay time.Duration) error {
	payload, err := json.Marshal(drainPayload{UserAddress: userAddress})
	if err != nil {
		return fmt.Errorf("failed to marshal drain payload: %w", err)
	}

	dueAt := time.Now().Add(delay).Unix()
	task := asynq.NewTask(TaskTypeDrain, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDrain),
		asynq.ProcessIn(delay),
		asynq.TaskID(fmt.Sprintf("drain:%s:%d", userAddress, dueAt)),
		asynq.MaxRetry(3),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to schedule drain: %w", err)
	}

	log.Printf("Scheduled drain for %s in %s", userAddress, delay)
	return nil
}

// NewDrainHandler returns the asynq handler that feeds scheduled drains
// back into the manager.
func NewDrainHandler(m *Manager) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p drainPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("failed to unmarshal drain payload: %w", err)
		}
		m.DrainUser(p.UserAddress)
		return nil
	}
}
