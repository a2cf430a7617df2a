package video

import (
	"sync"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
)

// Latest is a Sink that keeps only the most recently rendered frame and
// wakes subscribers when it changes.
type Latest struct {
	mu    sync.RWMutex
	frame *core.Frame
	subs  map[chan struct{}]struct{}
}

var _ Sink = (*Latest)(nil)

// NewLatest returns an empty Latest.
func NewLatest() *Latest {
	return &Latest{subs: make(map[chan struct{}]struct{})}
}

func (l *Latest) Render(f *core.Frame) {
	l.mu.Lock()
	l.frame = f
	for ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	l.mu.Unlock()
}

// Frame returns the last rendered frame, or nil.
func (l *Latest) Frame() *core.Frame {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame
}

// Subscribe returns a channel signalled after each render, coalescing
// signals the reader has not consumed yet. Call cancel when done.
func (l *Latest) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, ch)
			l.mu.Unlock()
		})
	}
}
