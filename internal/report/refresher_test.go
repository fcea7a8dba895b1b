package report

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRefresherRunsOnTick(t *testing.T) {
	var ran atomic.Int64
	done := make(chan struct{}, 8)

	r := NewRefresher(func(ctx context.Context) {
		ran.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer r.Stop()

	r.Update(5*time.Millisecond, true)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("refresher never ticked")
	}
	if ran.Load() < 1 {
		t.Fatalf("expected at least one run")
	}
}

func TestRefresherDisabledDoesNotRun(t *testing.T) {
	var ran atomic.Int64
	r := NewRefresher(func(ctx context.Context) { ran.Add(1) })
	defer r.Stop()

	r.Update(5*time.Millisecond, false)
	time.Sleep(50 * time.Millisecond)

	if ran.Load() != 0 {
		t.Fatalf("disabled refresher ran %d times", ran.Load())
	}
}

func TestRefresherStopCancelsLoop(t *testing.T) {
	var ran atomic.Int64
	r := NewRefresher(func(ctx context.Context) { ran.Add(1) })

	r.Update(5*time.Millisecond, true)
	time.Sleep(30 * time.Millisecond)
	r.Stop()

	after := ran.Load()
	time.Sleep(50 * time.Millisecond)
	if ran.Load() != after {
		t.Fatalf("refresher kept running after Stop: %d -> %d", after, ran.Load())
	}
}

func TestRefresherUpdateReplacesLoop(t *testing.T) {
	var ran atomic.Int64
	r := NewRefresher(func(ctx context.Context) { ran.Add(1) })
	defer r.Stop()

	r.Update(time.Hour, true)
	// A new interval must supersede the old loop entirely.
	r.Update(5*time.Millisecond, true)

	deadline := time.After(2 * time.Second)
	for ran.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("updated refresher never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
