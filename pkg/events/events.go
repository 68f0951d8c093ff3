package events

import (
	"context"
	"sync"
	"time"
)

// Signal is a channel that fires once when a job's journal grows.
type Signal chan struct{}

// Hub wakes long-poll readers when new journal events are committed for a
// job. It carries no event data; readers re-run their cursor query against
// the store after a wakeup, so a missed signal costs latency, never events.
type Hub struct {
	mu      sync.Mutex
	waiters map[string]map[Signal]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		waiters: make(map[string]map[Signal]struct{}),
	}
}

// Subscribe registers interest in jobID and returns a signal channel.
func (h *Hub) Subscribe(jobID string) Signal {
	h.mu.Lock()
	defer h.mu.Unlock()

	sig := make(Signal, 1)
	set, ok := h.waiters[jobID]
	if !ok {
		set = make(map[Signal]struct{})
		h.waiters[jobID] = set
	}
	set[sig] = struct{}{}
	return sig
}

// Unsubscribe removes a signal channel registered with Subscribe.
func (h *Hub) Unsubscribe(jobID string, sig Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.waiters[jobID]
	if !ok {
		return
	}
	delete(set, sig)
	if len(set) == 0 {
		delete(h.waiters, jobID)
	}
}

// Publish wakes every reader currently waiting on jobID.
func (h *Hub) Publish(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sig := range h.waiters[jobID] {
		select {
		case sig <- struct{}{}:
		default:
			// Signal already pending, skip
		}
	}
}

// Wait blocks until jobID is published, the timeout elapses, or ctx ends.
// It reports whether a publish caused the wakeup.
func (h *Hub) Wait(ctx context.Context, jobID string, timeout time.Duration) bool {
	sig := h.Subscribe(jobID)
	defer h.Unsubscribe(jobID, sig)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-sig:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// WaiterCount returns the number of readers currently blocked on jobID.
func (h *Hub) WaiterCount(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters[jobID])
}
