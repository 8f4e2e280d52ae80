package connectivity

import (
	"context"
	"log"
	"sync"
	"time"
)

// Signal is a connectivity edge or an explicit sync request. Drains are
// triggered on edges, not on every successful probe, so a healthy link
// does not generate a wakeup storm.
type Signal string

const (
	SignalOnline        Signal = "online"
	SignalOffline       Signal = "offline"
	SignalSyncRequested Signal = "sync-requested"
)

// Pinger reports whether the upstream network is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor probes the chain endpoint on an interval and notifies
// subscribers on state changes. A manual sync request is forwarded
// regardless of the probe state; the queue decides what to do with it.
type Monitor struct {
	pinger   Pinger
	interval time.Duration

	mu       sync.Mutex
	handlers []func(Signal)
	online   bool
	probed   bool
}

// NewMonitor creates a new connectivity monitor
func NewMonitor(pinger Pinger, interval time.Duration) *Monitor {
	return &Monitor{pinger: pinger, interval: interval}
}

// Subscribe registers a handler for connectivity signals.
func (m *Monitor) Subscribe(handler func(Signal)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// RequestSync forwards an explicit sync request from the client.
func (m *Monitor) RequestSync() {
	m.notify(SignalSyncRequested)
}

// Start probes until the context is cancelled. Blocks; run on its own
// goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := m.pinger.Ping(probeCtx)
	cancel()

	online := err == nil

	m.mu.Lock()
	changed := !m.probed || online != m.online
	m.probed = true
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		log.Printf("Connectivity: online")
		m.notify(SignalOnline)
	} else {
		log.Printf("Connectivity: offline (%v)", err)
		m.notify(SignalOffline)
	}
}

func (m *Monitor) notify(s Signal) {
	m.mu.Lock()
	handlers := make([]func(Signal), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}
