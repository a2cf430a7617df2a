package runner

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/guard"
	"github.com/autopeer-io/skypeer/internal/pilot/link/fake"
	"github.com/autopeer-io/skypeer/internal/pilot/route"
)

func newRunner(t *testing.T, link *fake.Link, g *guard.Guard) *Runner {
	t.Helper()
	return New(Config{Link: link, Guard: g, CommandTimeout: time.Second})
}

func runToIdle(t *testing.T, r *Runner, rt *route.Route) Status {
	t.Helper()
	if _, err := r.Start(context.Background(), rt); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return r.Status()
}

func TestRouteExecutesInOrder(t *testing.T) {
	link := fake.New()
	g := guard.New()
	r := newRunner(t, link, g)

	rt := route.Parse("mem", "takeoff\nforward 50\ncw 90\nland\n")
	st := runToIdle(t, r, rt)

	want := []string{"takeoff", "forward 50", "cw 90", "land"}
	if got := link.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if st.State != StateIdle || st.LastOutcome != StateCompleted {
		t.Fatalf("status = %+v", st)
	}
	if st.Executed != 4 || st.Remaining != 0 || rt.Len() != 0 {
		t.Fatalf("executed=%d remaining=%d len=%d", st.Executed, st.Remaining, rt.Len())
	}
	if g.IsRouteRunning() {
		t.Fatal("guard still owned after completion")
	}
}

func TestStopAfterKthCommand(t *testing.T) {
	link := fake.New()
	r := newRunner(t, link, guard.New())

	link.OnCall = func(op string) {
		if op == "forward 2" {
			r.Stop()
		}
	}

	rt := route.Parse("mem", "forward 1\nforward 2\nforward 3\nforward 4\nforward 5")
	st := runToIdle(t, r, rt)

	want := []string{"forward 1", "forward 2"}
	if got := link.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if st.LastOutcome != StateCancelled {
		t.Fatalf("LastOutcome = %q, want %q", st.LastOutcome, StateCancelled)
	}
	if st.Discarded != 3 || rt.Len() != 0 {
		t.Fatalf("discarded=%d len=%d", st.Discarded, rt.Len())
	}
}

func TestMalformedStepIsSkipped(t *testing.T) {
	link := fake.New()
	r := newRunner(t, link, guard.New())

	st := runToIdle(t, r, route.Parse("mem", "takeoff\nflip x\nland"))

	want := []string{"takeoff", "land"}
	if got := link.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if st.Skipped != 1 || len(st.Diagnostics) != 1 || st.LastOutcome != StateCompleted {
		t.Fatalf("status = %+v", st)
	}
}

func TestUnknownKeywordIsNoOp(t *testing.T) {
	link := fake.New()
	r := newRunner(t, link, guard.New())

	st := runToIdle(t, r, route.Parse("mem", "takeoff\nhover 3\nland"))

	if got := link.Calls(); !reflect.DeepEqual(got, []string{"takeoff", "land"}) {
		t.Fatalf("calls = %v", got)
	}
	if st.Executed != 3 || st.Skipped != 0 || len(st.Diagnostics) != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestEmptyAndNilRoute(t *testing.T) {
	for name, rt := range map[string]*route.Route{
		"empty": route.Parse("mem", "\n\n"),
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			link := fake.New()
			r := newRunner(t, link, guard.New())

			st := runToIdle(t, r, rt)
			if len(link.Calls()) != 0 {
				t.Fatalf("calls = %v", link.Calls())
			}
			if st.LastOutcome != StateCompleted {
				t.Fatalf("LastOutcome = %q", st.LastOutcome)
			}
		})
	}
}

func TestDeviceErrorsAreNotFatal(t *testing.T) {
	link := fake.New()
	link.FailOn["forward 50"] = errors.New("error")
	r := newRunner(t, link, guard.New())

	st := runToIdle(t, r, route.Parse("mem", "takeoff\nforward 50\nland"))

	if got := link.Calls(); len(got) != 3 {
		t.Fatalf("calls = %v", got)
	}
	if st.Failed != 1 || st.Executed != 3 || st.LastOutcome != StateCompleted {
		t.Fatalf("status = %+v", st)
	}
}

func TestCommandTimeoutIsBounded(t *testing.T) {
	link := fake.New()
	link.Delay = time.Second
	r := New(Config{Link: link, Guard: guard.New(), CommandTimeout: 20 * time.Millisecond})

	start := time.Now()
	st := runToIdle(t, r, route.Parse("mem", "takeoff\nland"))

	if time.Since(start) > 900*time.Millisecond {
		t.Fatalf("run took %v, timeouts not applied", time.Since(start))
	}
	if st.Failed != 2 {
		t.Fatalf("status = %+v", st)
	}
}

func TestStartWhileRunning(t *testing.T) {
	link := fake.New()
	link.Delay = 50 * time.Millisecond
	r := newRunner(t, link, guard.New())
	ctx := context.Background()

	first, err := r.Start(ctx, route.Parse("mem", "takeoff\nforward 20\nland"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Start(ctx, route.Parse("mem", "flip l")); !errors.Is(err, core.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if st := r.Status(); st.RunID != first || st.State != StateRunning {
		t.Fatalf("running run disturbed: %+v", st)
	}

	if err := r.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	for _, op := range link.Calls() {
		if op == "flip l" {
			t.Fatal("second route executed")
		}
	}
}

func TestInteractiveRejectedWhileRunning(t *testing.T) {
	link := fake.New()
	g := guard.New()
	r := newRunner(t, link, g)

	started := make(chan struct{})
	release := make(chan struct{})
	link.OnCall = func(op string) {
		if op == "takeoff" {
			close(started)
			<-release
		}
	}

	ctx := context.Background()
	if _, err := r.Start(ctx, route.Parse("mem", "takeoff\nland")); err != nil {
		t.Fatal(err)
	}
	<-started

	err := g.Do(ctx, func(ctx context.Context) error { return link.Flip(ctx, core.FlipLeft) })
	if !errors.Is(err, core.ErrGuardRejected) {
		t.Fatalf("expected ErrGuardRejected, got %v", err)
	}

	close(release)
	if err := r.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if got := link.Calls(); !reflect.DeepEqual(got, []string{"takeoff", "land"}) {
		t.Fatalf("calls = %v", got)
	}
	if link.MaxInFlight() != 1 {
		t.Fatalf("MaxInFlight = %d", link.MaxInFlight())
	}
}

func TestStartRejectedWhenGuardOwned(t *testing.T) {
	link := fake.New()
	g := guard.New()
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	r := newRunner(t, link, g)

	_, err := r.Start(context.Background(), route.Parse("mem", "takeoff"))
	if !errors.Is(err, core.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	st := r.Status()
	if st.State != StateIdle || st.LastOutcome != StateRejected {
		t.Fatalf("status = %+v", st)
	}
	if !g.IsRouteRunning() {
		t.Fatal("a rejected run must not release a guard it never acquired")
	}
	if len(link.Calls()) != 0 {
		t.Fatalf("calls = %v", link.Calls())
	}
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	r := newRunner(t, fake.New(), guard.New())
	r.Stop()
	if r.State() != StateIdle {
		t.Fatalf("State() = %q", r.State())
	}
	if err := r.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRunnerCanRunAgain(t *testing.T) {
	link := fake.New()
	r := newRunner(t, link, guard.New())

	first := runToIdle(t, r, route.Parse("mem", "takeoff"))
	second := runToIdle(t, r, route.Parse("mem", "land"))

	if first.RunID == "" || first.RunID == second.RunID {
		t.Fatalf("run IDs %q and %q", first.RunID, second.RunID)
	}
	if got := link.Calls(); !reflect.DeepEqual(got, []string{"takeoff", "land"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestOnStatusPublishesIdle(t *testing.T) {
	var (
		mu     sync.Mutex
		states []string
	)
	r := New(Config{
		Link:  fake.New(),
		Guard: guard.New(),
		OnStatus: func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, s.State)
		},
	})

	runToIdle(t, r, route.Parse("mem", "takeoff\nland"))

	// The final publication happens after Wait returns; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(states)
		last := ""
		if n > 0 {
			last = states[n-1]
		}
		mu.Unlock()
		if n >= 3 && last == StateIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("states = %v", states)
}

func TestStartWaitingForInteractiveCallKeepsStatusResponsive(t *testing.T) {
	link := fake.New()
	g := guard.New()
	r := newRunner(t, link, g)

	inCall := make(chan struct{})
	release := make(chan struct{})
	go g.Do(context.Background(), func(context.Context) error {
		close(inCall)
		<-release
		return nil
	})
	<-inCall

	started := make(chan error, 1)
	go func() {
		_, err := r.Start(context.Background(), route.Parse("mem", "takeoff"))
		started <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for r.State() != StateStarting {
		if time.Now().After(deadline) {
			t.Fatal("runner never entered starting")
		}
		time.Sleep(time.Millisecond)
	}

	statusDone := make(chan Status, 1)
	go func() { statusDone <- r.Status() }()
	select {
	case st := <-statusDone:
		if st.State != StateStarting {
			t.Fatalf("status = %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("Status blocked while Start waited for the device")
	}

	if _, err := r.Start(context.Background(), route.Parse("mem", "land")); !errors.Is(err, core.ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}

	close(release)
	if err := <-started; err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if got := link.Calls(); !reflect.DeepEqual(got, []string{"takeoff"}) {
		t.Fatalf("calls = %v", got)
	}
}
