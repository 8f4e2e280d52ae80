package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/greengoods/api/internal/backend"
	"github.com/greengoods/api/internal/cache"
	"github.com/greengoods/api/internal/eventbus"
	"github.com/greengoods/api/internal/model"
	"github.com/greengoods/api/internal/resolver"
	"github.com/greengoods/api/internal/store"
)

// ErrNotCancellable is returned when a cancel request arrives after the
// job left the queued state; a submission already in flight is
// irreversible.
var ErrNotCancellable = errors.New("job can no longer be cancelled")

// Config holds the manager's retry and confirmation tuning.
type Config struct {
	MaxRetries       int
	Backoff          BackoffPolicy
	ConfirmAttempts  int
	ConfirmInterval  time.Duration
	ConfirmRetention time.Duration
}

// Manager owns every job from enqueue to a terminal state. It drains each
// user's queue in FIFO order with exactly one active job per user, since
// dispatching two wallet transactions concurrently for one account risks a
// nonce collision. Each job moves through
// queued → simulating → dispatching → awaiting_confirmation → confirmed,
// with retryable failures looping back to queued after backoff.
type Manager struct {
	store     *store.JobStore
	backends  map[model.BackendKind]backend.SubmissionBackend
	resolver  *resolver.ConflictResolver
	simCache  *cache.SimCache
	bus       *eventbus.Bus
	scheduler DrainScheduler
	cfg       Config

	mu      sync.Mutex
	workers map[string]*userWorker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// userWorker serializes all mutation of one user's jobs. Its mutex covers
// the claim of a queued job and cancellation, so the two can never race.
type userWorker struct {
	addr string
	wake chan struct{}
	mu   sync.Mutex
}

// NewManager creates a new queue manager
func NewManager(
	jobStore *store.JobStore,
	backends map[model.BackendKind]backend.SubmissionBackend,
	conflicts *resolver.ConflictResolver,
	simCache *cache.SimCache,
	bus *eventbus.Bus,
	scheduler DrainScheduler,
	cfg Config,
) *Manager {
	return &Manager{
		store:     jobStore,
		backends:  backends,
		resolver:  conflicts,
		simCache:  simCache,
		bus:       bus,
		scheduler: scheduler,
		cfg:       cfg,
		workers:   make(map[string]*userWorker),
	}
}

// Start runs crash recovery and begins draining. Jobs found mid-flight
// are normalized: an interrupted simulation goes back to queued, an
// interrupted dispatch that already has a handle resumes at confirmation,
// and one without a handle is re-checked against remote state before any
// re-dispatch.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	users, err := m.store.ListUsers(m.ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for recovery: %w", err)
	}

	for _, addr := range users {
		if err := m.recoverUser(addr); err != nil {
			log.Printf("Recovery for %s failed: %v", addr, err)
		}
		m.DrainUser(addr)
	}

	log.Printf("Queue manager started (%d users recovered)", len(users))
	return nil
}

func (m *Manager) recoverUser(addr string) error {
	jobs, err := m.store.ListByUser(m.ctx, addr)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		switch job.Status {
		case model.JobStatusSimulating:
			// The dry-run has no side effects; start the attempt over.
			m.transition(m.ctx, job, model.JobStatusQueued)
		case model.JobStatusDispatching:
			if job.TxRef != "" {
				// The transaction left the process; only confirmation
				// remains.
				m.transition(m.ctx, job, model.JobStatusAwaitingConfirmation)
			}
		}
	}
	return nil
}

// Stop halts all workers and waits for the in-flight job to finish its
// current persistence step.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// DrainAll wakes every known user's worker. Triggered by regained
// connectivity and explicit sync requests.
func (m *Manager) DrainAll() {
	if m.ctx == nil {
		return
	}
	users, err := m.store.ListUsers(m.ctx)
	if err != nil {
		log.Printf("DrainAll: failed to list users: %v", err)
		return
	}
	for _, addr := range users {
		m.DrainUser(addr)
	}
}

// DrainUser wakes (starting if necessary) the worker for one user.
func (m *Manager) DrainUser(addr string) {
	w := m.workerFor(addr)
	if w == nil {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) workerFor(addr string) *userWorker {
	if m.ctx == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.workers[addr]; ok {
		return w
	}
	w := &userWorker{addr: addr, wake: make(chan struct{}, 1)}
	m.workers[addr] = w

	m.wg.Add(1)
	go m.runWorker(w)
	return w
}

// Enqueue persists a freshly created job and wakes its user's worker. The
// sole write path into the queue; after this call the job belongs to the
// manager.
func (m *Manager) Enqueue(ctx context.Context, job *model.Job) error {
	if err := m.store.Put(ctx, job); err != nil {
		return err
	}
	m.publish(job)
	m.DrainUser(job.UserAddress)
	return nil
}

// Cancel cancels a job, permitted only while it is still queued.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	w := m.workerFor(job.UserAddress)
	if w != nil {
		w.mu.Lock()
		defer w.mu.Unlock()
	}

	// Re-read under the claim lock; the worker may have just picked it up.
	job, err = m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusQueued {
		return job, ErrNotCancellable
	}

	m.transition(ctx, job, model.JobStatusCancelled)
	return job, nil
}

func (m *Manager) runWorker(w *userWorker) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		job, wait, err := m.nextJob(w)
		if err != nil {
			log.Printf("Worker %s: %v", w.addr, err)
			if !m.sleep(5 * time.Second) {
				return
			}
			continue
		}

		if job != nil {
			m.process(w, job)
			continue
		}

		if wait > 0 {
			if err := m.scheduler.ScheduleDrain(m.ctx, w.addr, wait); err != nil {
				log.Printf("Worker %s: failed to schedule drain: %v", w.addr, err)
			}
		}

		select {
		case <-w.wake:
		case <-m.ctx.Done():
			return
		}
	}
}

// nextJob finds the head of the user's queue: the earliest non-terminal
// job. Cancelled jobs are skipped without breaking order for the rest.
// A queued head is claimed (queued → simulating) under the worker lock.
// Returns (nil, wait, nil) when the head is in backoff, and (nil, 0, nil)
// when the queue is empty.
func (m *Manager) nextJob(w *userWorker) (*model.Job, time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	jobs, err := m.store.ListByUser(m.ctx, w.addr)
	if err != nil {
		return nil, 0, err
	}

	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}

		if job.Status == model.JobStatusAwaitingConfirmation &&
			m.cfg.ConfirmRetention > 0 && time.Since(job.UpdatedAt) > m.cfg.ConfirmRetention {
			// Connectivity never returned within the retention window.
			job.LastError = model.NewTimeoutError("confirmation window expired")
			m.transition(m.ctx, job, model.JobStatusFailed)
			continue
		}

		if job.NextAttemptAt != nil && time.Until(*job.NextAttemptAt) > 0 {
			return nil, time.Until(*job.NextAttemptAt), nil
		}

		if job.Status == model.JobStatusQueued {
			job.NextAttemptAt = nil
			m.transition(m.ctx, job, model.JobStatusSimulating)
		}
		return job, 0, nil
	}

	return nil, 0, nil
}

func (m *Manager) process(w *userWorker, job *model.Job) {
	be, ok := m.backends[job.Backend]
	if !ok {
		m.failTerminal(job, model.NewValidationError(fmt.Sprintf("no backend registered for %q", job.Backend)))
		return
	}

	if job.Status == model.JobStatusAwaitingConfirmation {
		m.confirm(job, be)
		return
	}

	// A dispatching job without a handle means the process died with the
	// send in flight; whether it reached the chain is unknown.
	redispatch := job.Status == model.JobStatusDispatching

	finding, err := m.resolver.Check(m.ctx, job)
	if err != nil {
		m.failWith(job, model.Classify(err))
		return
	}
	if finding.Duplicate {
		job.TxRef = finding.CanonicalRef
		job.LastError = model.NewConflictError(finding.CanonicalRef)
		m.transition(m.ctx, job, model.JobStatusConflicted)
		return
	}

	if redispatch {
		if job.RetryCount >= job.MaxRetries {
			m.failTerminal(job, model.NewTimeoutError("dispatch interrupted and retries exhausted"))
			return
		}
		job.RetryCount++
		m.transition(m.ctx, job, model.JobStatusDispatching)
	} else {
		fingerprint := cache.Fingerprint(job)
		outcome, hit := m.simCache.Get(fingerprint)
		if !hit {
			result, err := be.Simulate(m.ctx, job)
			if err != nil {
				m.failWith(job, model.Classify(err))
				return
			}
			outcome = cache.Outcome{OK: result.OK, Err: result.Err}
			m.simCache.Put(fingerprint, outcome)
		}
		if !outcome.OK {
			m.failWith(job, outcome.Err)
			return
		}
		m.transition(m.ctx, job, model.JobStatusDispatching)
	}

	txRef, err := be.Dispatch(m.ctx, job)
	if err != nil {
		m.failWith(job, model.Classify(err))
		return
	}

	job.TxRef = txRef
	m.transition(m.ctx, job, model.JobStatusAwaitingConfirmation)
	m.confirm(job, be)
}

// confirm polls the backend with bounded attempts and growing intervals.
// Exhausting the attempts defers the job instead of failing it, because the
// transaction may still land after we stop polling. The recheck time is
// persisted as NextAttemptAt so the worker parks instead of re-polling; the
// park path schedules the drain that wakes it.
func (m *Manager) confirm(job *model.Job, be backend.SubmissionBackend) {
	for attempt := 1; attempt <= m.cfg.ConfirmAttempts; attempt++ {
		receipt, err := be.Confirm(m.ctx, job.TxRef)
		if err != nil {
			log.Printf("Job %s: confirm attempt %d failed: %v", job.ID, attempt, err)
		} else {
			switch receipt.Status {
			case backend.ReceiptConfirmed:
				if receipt.TxRef != "" {
					job.TxRef = receipt.TxRef
				}
				job.LastError = nil
				job.NextAttemptAt = nil
				m.transition(m.ctx, job, model.JobStatusConfirmed)
				return
			case backend.ReceiptReverted:
				m.failTerminal(job, model.NewSimulationFailure("transaction reverted on chain"))
				return
			}
		}

		if attempt < m.cfg.ConfirmAttempts {
			if !m.sleep(m.cfg.ConfirmInterval * time.Duration(attempt)) {
				return
			}
		}
	}

	log.Printf("Job %s: confirmation attempts exhausted, deferring", job.ID)
	recheck := m.cfg.ConfirmInterval * time.Duration(m.cfg.ConfirmAttempts)
	at := time.Now().Add(recheck)
	job.NextAttemptAt = &at
	if err := m.store.Put(m.ctx, job); err != nil {
		log.Printf("Job %s: failed to persist confirmation recheck: %v", job.ID, err)
	}
}

// failWith routes a classified error to the retry loop or a terminal
// failure.
func (m *Manager) failWith(job *model.Job, serr *model.SubmissionError) {
	if serr.Retryable {
		m.failRetryable(job, serr)
		return
	}
	m.failTerminal(job, serr)
}

func (m *Manager) failRetryable(job *model.Job, serr *model.SubmissionError) {
	job.LastError = serr

	if job.RetryCount >= job.MaxRetries {
		m.transition(m.ctx, job, model.JobStatusFailed)
		return
	}

	job.RetryCount++
	delay := m.cfg.Backoff.Delay(job.RetryCount)
	at := time.Now().Add(delay)
	job.NextAttemptAt = &at
	m.transition(m.ctx, job, model.JobStatusQueued)

	if err := m.scheduler.ScheduleDrain(m.ctx, job.UserAddress, delay); err != nil {
		log.Printf("Job %s: failed to schedule retry: %v", job.ID, err)
	}
}

func (m *Manager) failTerminal(job *model.Job, serr *model.SubmissionError) {
	job.LastError = serr
	m.transition(m.ctx, job, model.JobStatusFailed)
}

// transition persists the new status and publishes exactly one event.
func (m *Manager) transition(ctx context.Context, job *model.Job, status model.JobStatus) {
	job.Status = status
	job.UpdatedAt = time.Now()

	if err := m.store.Put(ctx, job); err != nil {
		log.Printf("Job %s: failed to persist %s: %v", job.ID, status, err)
	}

	log.Printf("Job %s → %s", job.ID, status)
	m.publish(job)
}

func (m *Manager) publish(job *model.Job) {
	m.bus.Publish(eventbus.Event{
		JobID:       job.ID,
		UserAddress: job.UserAddress,
		Status:      job.Status,
		TxRef:       job.TxRef,
		Error:       job.LastError,
		At:          job.UpdatedAt,
	})
}

// sleep waits unless the manager is stopping. Returns false on shutdown.
func (m *Manager) sleep(d time.Duration) bool {
	select {
	case <-m.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
