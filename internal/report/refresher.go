package report

import (
	"context"
	"sync"
	"time"
)

// Refresher owns the one autonomous background activity in the system: the
// periodic dashboard snapshot recompute. Every Update cancels the running
// loop and, when enabled, starts a fresh one at the new interval; Stop cancels
// unconditionally. There is no request deduplication: if a manual reload races
// a tick, whichever finishes last wins the cached snapshot.
type Refresher struct {
	mu     sync.Mutex
	run    func(ctx context.Context)
	cancel context.CancelFunc
}

func NewRefresher(run func(ctx context.Context)) *Refresher {
	return &Refresher{run: run}
}

func (r *Refresher) Update(interval time.Duration, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if !enabled || interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.loop(ctx, interval)
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Refresher) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}
