package eventbus

import (
	"log"
	"sync"
	"time"

	"github.com/greengoods/api/internal/model"
)

// Event is one job lifecycle transition.
type Event struct {
	JobID       string                 `json:"jobId"`
	UserAddress string                 `json:"userAddress"`
	Status      model.JobStatus        `json:"status"`
	TxRef       string                 `json:"txRef,omitempty"`
	Error       *model.SubmissionError `json:"error,omitempty"`
	At          time.Time              `json:"at"`
}

// Bus is an in-process, fire-and-forget broadcast channel for job
// transitions. Delivery is at most once per subscriber; events are not
// persisted; after a restart, observers rebuild their view from the job
// store instead of replaying history. A subscriber that cannot keep up
// drops events rather than blocking publishers.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	wg     sync.WaitGroup
	closed bool
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a handler and returns its unsubscribe function.
// The handler runs on a dedicated goroutine per subscriber.
func (b *Bus) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for e := range ch {
			handler(e)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish broadcasts an event to all subscribers without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			log.Printf("Event bus: subscriber %d is slow, dropping event for job %s", id, e.JobID)
		}
	}
}

// Close stops the bus and waits for subscriber goroutines to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
