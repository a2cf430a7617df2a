package video

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/pkg/options"
)

// Sink displays frames. Render may be slow.
type Sink interface {
	Render(f *core.Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f *core.Frame)

func (fn SinkFunc) Render(f *core.Frame) { fn(f) }

// Dispatcher hands acquired frames to a Sink.
type Dispatcher interface {
	// Dispatch reports whether the frame was accepted for rendering.
	Dispatch(f *core.Frame) bool
	// Wait blocks until no render is in flight.
	Wait()
}

// SyncDispatcher renders on the acquisition goroutine.
type SyncDispatcher struct {
	sink Sink
}

// NewSyncDispatcher returns a dispatcher rendering inline.
func NewSyncDispatcher(sink Sink) *SyncDispatcher {
	return &SyncDispatcher{sink: sink}
}

func (d *SyncDispatcher) Dispatch(f *core.Frame) bool {
	d.sink.Render(f)
	return true
}

func (d *SyncDispatcher) Wait() {}

// AsyncDispatcher keeps at most one render in flight and drops frames that
// arrive while the renderer is busy.
type AsyncDispatcher struct {
	sink    Sink
	busy    atomic.Bool
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// NewAsyncDispatcher returns a drop-while-busy dispatcher.
func NewAsyncDispatcher(sink Sink) *AsyncDispatcher {
	return &AsyncDispatcher{sink: sink}
}

func (d *AsyncDispatcher) Dispatch(f *core.Frame) bool {
	if !d.busy.CompareAndSwap(false, true) {
		d.dropped.Add(1)
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.busy.Store(false)
		d.sink.Render(f)
	}()
	return true
}

func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

// Dropped returns the number of frames dropped because a render was in flight.
func (d *AsyncDispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// NewDispatcher picks the dispatcher for mode. Auto renders asynchronously on
// darwin, where rendering on the acquisition goroutine stalls frame pulls.
func NewDispatcher(mode string, sink Sink) (Dispatcher, error) {
	switch mode {
	case options.RenderModeSync:
		return NewSyncDispatcher(sink), nil
	case options.RenderModeAsync:
		return NewAsyncDispatcher(sink), nil
	case options.RenderModeAuto, "":
		if runtime.GOOS == "darwin" {
			return NewAsyncDispatcher(sink), nil
		}
		return NewSyncDispatcher(sink), nil
	}
	return nil, fmt.Errorf("unknown render mode %q", mode)
}
