// Package guard arbitrates device access between interactive commands and
// the route runner.
package guard

import (
	"context"
	"sync/atomic"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pkg/metrics"
)

// Guard is a single-slot lock over the device. Interactive calls hold it for
// the duration of one device call; the route runner owns it for a whole run.
type Guard struct {
	sem   chan struct{}
	owned atomic.Bool
}

// New returns an idle guard.
func New() *Guard {
	return &Guard{sem: make(chan struct{}, 1)}
}

func (g *Guard) lock(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Guard) unlock() {
	<-g.sem
}

// Do runs fn while holding the guard. It returns core.ErrGuardRejected
// without calling fn when a route owns the device.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.lock(ctx); err != nil {
		return err
	}
	defer g.unlock()

	if g.owned.Load() {
		metrics.GuardRejections.Inc()
		return core.ErrGuardRejected
	}
	return fn(ctx)
}

// Acquire hands the device to a route run. It waits for an in-progress
// interactive call and fails with core.ErrAlreadyRunning if a route already
// owns the device.
func (g *Guard) Acquire(ctx context.Context) error {
	if err := g.lock(ctx); err != nil {
		return err
	}
	defer g.unlock()

	if g.owned.Load() {
		return core.ErrAlreadyRunning
	}
	g.owned.Store(true)
	metrics.RouteRunning.Set(1)
	return nil
}

// Release returns the device from a route run.
func (g *Guard) Release() {
	g.owned.Store(false)
	metrics.RouteRunning.Set(0)
}

// WhenIdle runs fn only while no route owns the device, failing with
// core.ErrRouteBusy otherwise. A route cannot start while fn runs.
func (g *Guard) WhenIdle(ctx context.Context, fn func() error) error {
	if err := g.lock(ctx); err != nil {
		return err
	}
	defer g.unlock()

	if g.owned.Load() {
		return core.ErrRouteBusy
	}
	return fn()
}

// IsRouteRunning reports whether a route owns the device.
func (g *Guard) IsRouteRunning() bool {
	return g.owned.Load()
}
