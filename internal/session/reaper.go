package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// Default reaper timing, matching the service's historical behavior:
// scan every 30 minutes, evict sessions idle for 2 hours.
const (
	DefaultReapInterval   = 30 * time.Minute
	DefaultSessionTimeout = 2 * time.Hour
)

// Reaper periodically evicts idle sessions from a store. Exactly one
// reaper runs per process; it holds no session lock between scans and
// stops within one tick of cancellation.
type Reaper struct {
	store    *Store
	interval time.Duration
	maxIdle  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewReaper creates a reaper for the given store. Non-positive
// interval or maxIdle fall back to the defaults.
func NewReaper(store *Store, interval, maxIdle time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if maxIdle <= 0 {
		maxIdle = DefaultSessionTimeout
	}
	return &Reaper{
		store:    store,
		interval: interval,
		maxIdle:  maxIdle,
	}
}

// Start launches the background eviction loop. Calling Start on a
// running reaper is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.run(loopCtx)
}

// Stop cancels the loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done
}

func (r *Reaper) run(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.running = false
		close(r.done)
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.store.EvictIdleOlderThan(r.maxIdle); n > 0 {
				log.Printf("reaper: evicted %d idle sessions (%d active)", n, r.store.Len())
			}
		}
	}
}
