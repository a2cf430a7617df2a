// Package fake provides an in-memory core.Link that records every device
// call. It is meant for tests.
package fake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
)

var _ core.Link = (*Link)(nil)

// Link records calls in order and tracks how many run at once.
type Link struct {
	// Delay is applied to every device call. A call whose ctx ends first
	// returns a *core.LinkError.
	Delay time.Duration

	// FailOn makes calls whose op matches return a *core.LinkError.
	FailOn map[string]error

	// OnCall, when set, runs at the start of every device call with its op.
	OnCall func(op string)

	mu     sync.Mutex
	calls  []string
	frame  *core.Frame
	freeze bool
	frozen *core.Frame
	closed bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// New returns an empty Link.
func New() *Link {
	return &Link{FailOn: map[string]error{}}
}

func (l *Link) do(ctx context.Context, op string) error {
	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	for {
		m := l.maxInFlight.Load()
		if n <= m || l.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	l.mu.Lock()
	l.calls = append(l.calls, op)
	hook := l.OnCall
	err := l.FailOn[op]
	l.mu.Unlock()

	if hook != nil {
		hook(op)
	}

	if l.Delay > 0 {
		t := time.NewTimer(l.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return core.NewLinkError(op, ctx.Err())
		}
	}

	if err != nil {
		return core.NewLinkError(op, err)
	}
	return nil
}

func (l *Link) SendControlCommand(ctx context.Context) error { return l.do(ctx, "command") }
func (l *Link) TakeOff(ctx context.Context) error            { return l.do(ctx, "takeoff") }
func (l *Link) Land(ctx context.Context) error               { return l.do(ctx, "land") }

func (l *Link) Move(ctx context.Context, dir core.MoveDirection, cm int) error {
	return l.do(ctx, fmt.Sprintf("%s %d", dir, cm))
}

func (l *Link) Rotate(ctx context.Context, dir core.RotateDirection, degrees int) error {
	return l.do(ctx, fmt.Sprintf("%s %d", dir, degrees))
}

func (l *Link) Flip(ctx context.Context, dir core.FlipDirection) error {
	return l.do(ctx, fmt.Sprintf("flip %s", dir))
}

func (l *Link) ReadFrame() *core.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.freeze {
		return l.frozen
	}
	return l.frame
}

func (l *Link) SetVideoFreeze(frozen bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if frozen && !l.freeze {
		l.frozen = l.frame
	}
	l.freeze = frozen
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// SetFrame makes f the frame returned by ReadFrame.
func (l *Link) SetFrame(f *core.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = f
}

// Calls returns a copy of the recorded ops.
func (l *Link) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// MaxInFlight returns the highest number of concurrent device calls seen.
func (l *Link) MaxInFlight() int {
	return int(l.maxInFlight.Load())
}

// Closed reports whether Close was called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// NewFrame returns a valid w x h frame with the given sequence number.
func NewFrame(seq uint64, w, h int) *core.Frame {
	return &core.Frame{
		Seq:        seq,
		Width:      w,
		Height:     h,
		Pix:        make([]byte, w*h*3),
		CapturedAt: time.Now(),
	}
}
