package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/greengoods/api/internal/model"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var mu sync.Mutex
	got := make(map[int]int)

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		i := i
		b.Subscribe(func(e Event) {
			mu.Lock()
			got[i]++
			mu.Unlock()
			done <- struct{}{}
		})
	}

	b.Publish(Event{JobID: "job-1", Status: model.JobStatusQueued})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != 1 || got[1] != 1 {
		t.Errorf("expected one delivery per subscriber, got %v", got)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	received := make(chan Event, 4)
	unsub := b.Subscribe(func(e Event) {
		received <- e
	})

	b.Publish(Event{JobID: "job-1"})
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first event")
	}

	unsub()
	b.Publish(Event{JobID: "job-2"})

	select {
	case e := <-received:
		t.Errorf("received event after unsubscribe: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishAfterCloseDoesNotPanic(t *testing.T) {
	b := NewBus()
	b.Subscribe(func(e Event) {})
	b.Close()

	b.Publish(Event{JobID: "job-1"})
}

func TestBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus()
	defer b.Close()

	block := make(chan struct{})
	b.Subscribe(func(e Event) {
		<-block
	})

	// Flood well past the subscriber buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(Event{JobID: "job-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	close(block)
}
