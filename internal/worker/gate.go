package worker

import (
	"context"
	"sync"
)

// HostGate allows at most one in-flight operation per host
type HostGate struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewHostGate creates an empty gate
func NewHostGate() *HostGate {
	return &HostGate{slots: make(map[string]chan struct{})}
}

// Acquire blocks until host is free or ctx is done. The returned release
// function must be called exactly once.
func (g *HostGate) Acquire(ctx context.Context, host string) (func(), error) {
	g.mu.Lock()
	slot, ok := g.slots[host]
	if !ok {
		slot = make(chan struct{}, 1)
		g.slots[host] = slot
	}
	g.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
