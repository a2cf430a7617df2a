// Package video pulls decoded frames from the drone link and hands them to a
// renderer without letting a slow renderer stall acquisition.
package video

import (
	"context"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pkg/metrics"
	"github.com/autopeer-io/skypeer/pkg/log"
)

// DefaultPollInterval is used when Config.Interval is zero.
const DefaultPollInterval = 30 * time.Millisecond

// Config configures a Loop.
type Config struct {
	Link       core.Link
	Dispatcher Dispatcher

	// Interval is the polling period, and the fallback wake-up period when
	// the link signals new frames.
	Interval time.Duration

	Clock clock.WithTicker
}

// Stats counts what the loop did with each polled frame.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	None       uint64 `json:"none"`
	Degenerate uint64 `json:"degenerate"`
	Stale      uint64 `json:"stale"`
	Busy       uint64 `json:"busy"`
}

// Loop is the frame acquisition loop.
type Loop struct {
	link       core.Link
	dispatcher Dispatcher
	interval   time.Duration
	clock      clock.WithTicker

	lastSeq    uint64
	dispatched bool

	stats struct {
		dispatched, none, degenerate, stale, busy atomic.Uint64
	}
}

// NewLoop returns a Loop for cfg.
func NewLoop(cfg Config) *Loop {
	l := &Loop{
		link:       cfg.Link,
		dispatcher: cfg.Dispatcher,
		interval:   cfg.Interval,
		clock:      cfg.Clock,
	}
	if l.interval <= 0 {
		l.interval = DefaultPollInterval
	}
	if l.clock == nil {
		l.clock = clock.RealClock{}
	}
	return l
}

// Run acquires frames until ctx is done, then waits for an in-flight render.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()
	defer l.dispatcher.Wait()

	var ready <-chan struct{}
	if n, ok := l.link.(core.FrameNotifier); ok {
		ready = n.FrameReady()
	}

	log.Info("Frame acquisition started", "interval", l.interval, "notified", ready != nil)
	defer log.Info("Frame acquisition stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ready:
		case <-ticker.C():
		}
		if ctx.Err() != nil {
			return nil
		}
		l.acquire()
	}
}

func (l *Loop) acquire() {
	f := l.link.ReadFrame()
	switch {
	case f == nil:
		l.skip(&l.stats.none, "none")
		return
	case f.Degenerate():
		l.skip(&l.stats.degenerate, "degenerate")
		return
	case l.dispatched && f.Seq <= l.lastSeq:
		l.skip(&l.stats.stale, "stale")
		return
	}

	if !l.dispatcher.Dispatch(f) {
		l.skip(&l.stats.busy, "busy")
		return
	}
	l.lastSeq = f.Seq
	l.dispatched = true
	l.stats.dispatched.Add(1)
	metrics.FramesDispatched.Inc()
}

func (l *Loop) skip(c *atomic.Uint64, reason string) {
	c.Add(1)
	metrics.FramesSkipped.WithLabelValues(reason).Inc()
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Dispatched: l.stats.dispatched.Load(),
		None:       l.stats.none.Load(),
		Degenerate: l.stats.degenerate.Load(),
		Stale:      l.stats.stale.Load(),
		Busy:       l.stats.busy.Load(),
	}
}
