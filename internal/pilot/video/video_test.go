package video

import (
	"context"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/link/fake"
	"github.com/autopeer-io/skypeer/pkg/options"
)

type recordingSink struct {
	mu   sync.Mutex
	seqs []uint64
	// gate, when set, blocks Render until it is closed or receives.
	gate chan struct{}
}

func (s *recordingSink) Render(f *core.Frame) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs = append(s.seqs, f.Seq)
}

func (s *recordingSink) Seqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.seqs...)
}

const interval = 10 * time.Millisecond

func startLoop(t *testing.T, l *Loop) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return cancel, done
}

// stepUntil advances the fake clock until cond holds.
func stepUntil(t *testing.T, fc *testingclock.FakeClock, l *Loop, cond func(Stats) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond(l.Stats()) {
			return
		}
		fc.Step(interval)
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached, stats = %+v", l.Stats())
}

func TestLoopSkipsAndRendersLatestOnly(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	link := fake.New()
	sink := &recordingSink{}
	l := NewLoop(Config{Link: link, Dispatcher: NewSyncDispatcher(sink), Interval: interval, Clock: fc})

	cancel, done := startLoop(t, l)

	stepUntil(t, fc, l, func(s Stats) bool { return s.None >= 1 })

	link.SetFrame(&core.Frame{Seq: 1, Width: 0, Height: 720})
	stepUntil(t, fc, l, func(s Stats) bool { return s.Degenerate >= 1 })

	link.SetFrame(fake.NewFrame(1, 4, 3))
	stepUntil(t, fc, l, func(s Stats) bool { return s.Dispatched == 1 })
	stepUntil(t, fc, l, func(s Stats) bool { return s.Stale >= 2 })

	link.SetFrame(fake.NewFrame(2, 4, 3))
	stepUntil(t, fc, l, func(s Stats) bool { return s.Dispatched == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := sink.Seqs()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("rendered %v, want [1 2]", got)
	}
}

func TestLoopKeepsPollingWhileRendererBusy(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	link := fake.New()
	sink := &recordingSink{gate: make(chan struct{})}
	l := NewLoop(Config{Link: link, Dispatcher: NewAsyncDispatcher(sink), Interval: interval, Clock: fc})

	cancel, done := startLoop(t, l)

	link.SetFrame(fake.NewFrame(1, 2, 2))
	stepUntil(t, fc, l, func(s Stats) bool { return s.Dispatched == 1 })

	// Renderer is stuck on frame 1; newer frames must be dropped, not queued.
	for seq := uint64(2); seq <= 4; seq++ {
		link.SetFrame(fake.NewFrame(seq, 2, 2))
		want := seq - 1
		stepUntil(t, fc, l, func(s Stats) bool { return s.Busy >= want })
	}

	close(sink.gate)
	stepUntil(t, fc, l, func(s Stats) bool { return s.Dispatched == 2 })

	cancel()
	<-done

	got := sink.Seqs()
	if len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Fatalf("rendered %v, want [1 4]", got)
	}
}

func TestRunWaitsForInFlightRender(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	link := fake.New()
	sink := &recordingSink{gate: make(chan struct{})}
	l := NewLoop(Config{Link: link, Dispatcher: NewAsyncDispatcher(sink), Interval: interval, Clock: fc})

	cancel, done := startLoop(t, l)
	link.SetFrame(fake.NewFrame(1, 2, 2))
	stepUntil(t, fc, l, func(s Stats) bool { return s.Dispatched == 1 })

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned with a render in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	before := l.Stats()
	fc.Step(10 * interval)
	time.Sleep(10 * time.Millisecond)
	if l.Stats() != before {
		t.Fatal("acquisition continued after Run returned")
	}
}

type notifyingLink struct {
	*fake.Link
	ready chan struct{}
}

func (n *notifyingLink) FrameReady() <-chan struct{} { return n.ready }

func TestLoopWakesOnFrameNotification(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	link := &notifyingLink{Link: fake.New(), ready: make(chan struct{}, 1)}
	sink := &recordingSink{}
	l := NewLoop(Config{Link: link, Dispatcher: NewSyncDispatcher(sink), Interval: time.Hour, Clock: fc})

	cancel, done := startLoop(t, l)
	defer func() {
		cancel()
		<-done
	}()

	link.SetFrame(fake.NewFrame(7, 2, 2))
	link.ready <- struct{}{}

	deadline := time.Now().Add(5 * time.Second)
	for l.Stats().Dispatched == 0 {
		if time.Now().After(deadline) {
			t.Fatal("notification did not trigger acquisition")
		}
		time.Sleep(time.Millisecond)
	}
	if got := sink.Seqs(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("rendered %v", got)
	}
}

func TestAsyncDispatcherDropsWhileBusy(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	d := NewAsyncDispatcher(sink)

	if !d.Dispatch(fake.NewFrame(1, 1, 1)) {
		t.Fatal("first frame rejected")
	}
	if d.Dispatch(fake.NewFrame(2, 1, 1)) {
		t.Fatal("second frame accepted while busy")
	}
	if d.Dropped() != 1 {
		t.Fatalf("Dropped() = %d", d.Dropped())
	}

	close(sink.gate)
	d.Wait()
	if !d.Dispatch(fake.NewFrame(3, 1, 1)) {
		t.Fatal("frame rejected after render finished")
	}
	d.Wait()

	if got := sink.Seqs(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("rendered %v", got)
	}
}

func TestNewDispatcher(t *testing.T) {
	sink := NewLatest()
	if d, err := NewDispatcher(options.RenderModeSync, sink); err != nil {
		t.Fatal(err)
	} else if _, ok := d.(*SyncDispatcher); !ok {
		t.Fatalf("sync mode gave %T", d)
	}
	if d, err := NewDispatcher(options.RenderModeAsync, sink); err != nil {
		t.Fatal(err)
	} else if _, ok := d.(*AsyncDispatcher); !ok {
		t.Fatalf("async mode gave %T", d)
	}
	if _, err := NewDispatcher(options.RenderModeAuto, sink); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDispatcher("fancy", sink); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestLatest(t *testing.T) {
	l := NewLatest()
	if l.Frame() != nil {
		t.Fatal("new Latest has a frame")
	}

	ch, cancel := l.Subscribe()
	defer cancel()

	l.Render(fake.NewFrame(1, 1, 1))
	l.Render(fake.NewFrame(2, 1, 1))

	select {
	case <-ch:
	default:
		t.Fatal("subscriber not signalled")
	}
	select {
	case <-ch:
		t.Fatal("signals were not coalesced")
	default:
	}
	if l.Frame().Seq != 2 {
		t.Fatalf("Frame().Seq = %d", l.Frame().Seq)
	}

	cancel()
	l.Render(fake.NewFrame(3, 1, 1))
	select {
	case <-ch:
		t.Fatal("cancelled subscriber signalled")
	default:
	}
}
