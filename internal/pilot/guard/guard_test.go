package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
)

func TestDoRunsWhenIdle(t *testing.T) {
	g := New()
	called := false
	err := g.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("Do: err=%v called=%v", err, called)
	}
}

func TestDoRejectedWhileRouteOwns(t *testing.T) {
	g := New()
	ctx := context.Background()
	if err := g.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	called := false
	err := g.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, core.ErrGuardRejected) {
		t.Fatalf("expected ErrGuardRejected, got %v", err)
	}
	if called {
		t.Fatal("rejected command reached the device")
	}

	g.Release()
	if err := g.Do(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do after Release: %v", err)
	}
}

func TestAcquireTwice(t *testing.T) {
	g := New()
	ctx := context.Background()
	if err := g.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.Acquire(ctx); !errors.Is(err, core.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if !g.IsRouteRunning() {
		t.Fatal("IsRouteRunning() = false")
	}
	g.Release()
	if g.IsRouteRunning() {
		t.Fatal("IsRouteRunning() = true after Release")
	}
}

func TestWhenIdle(t *testing.T) {
	g := New()
	ctx := context.Background()

	ran := false
	if err := g.WhenIdle(ctx, func() error { ran = true; return nil }); err != nil || !ran {
		t.Fatalf("WhenIdle idle: err=%v ran=%v", err, ran)
	}

	_ = g.Acquire(ctx)
	ran = false
	if err := g.WhenIdle(ctx, func() error { ran = true; return nil }); !errors.Is(err, core.ErrRouteBusy) || ran {
		t.Fatalf("WhenIdle busy: err=%v ran=%v", err, ran)
	}
}

func TestAcquireWaitsForInteractiveCall(t *testing.T) {
	g := New()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(ctx, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	acquired := make(chan error, 1)
	go func() { acquired <- g.Acquire(ctx) }()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while an interactive call held the guard")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-acquired; err != nil {
		t.Fatalf("Acquire: %v", err)
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	g := New()
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		_ = g.Do(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestDoIsSingleWriter(t *testing.T) {
	g := New()
	var inFlight, peak atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), func(context.Context) error {
				n := inFlight.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak.Load())
	}
}
