// Package runner executes a loaded route in the background, one command at a
// time, until the route is exhausted or cancelled.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/skypeer/internal/pilot/command"
	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/guard"
	"github.com/autopeer-io/skypeer/internal/pilot/journal"
	"github.com/autopeer-io/skypeer/internal/pilot/route"
	"github.com/autopeer-io/skypeer/internal/pkg/metrics"
	"github.com/autopeer-io/skypeer/pkg/log"
)

// DefaultCommandTimeout bounds one device call of a route step.
const DefaultCommandTimeout = 7 * time.Second

// routeSource is what a run consumes. *route.Route satisfies it.
type routeSource interface {
	Pop() (route.Step, bool)
	Len() int
	Clear()
	Source() string
}

// Status is a snapshot of the runner.
type Status struct {
	State       string    `json:"state"`
	RunID       string    `json:"runId,omitempty"`
	Source      string    `json:"source,omitempty"`
	Remaining   int       `json:"remaining"`
	Executed    int       `json:"executed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	// Discarded is the number of steps dropped by a cancellation.
	Discarded   int       `json:"discarded,omitempty"`
	Diagnostics []string  `json:"diagnostics,omitempty"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`
	// LastOutcome is the final state of the previous run, if any.
	LastOutcome string    `json:"lastOutcome,omitempty"`
}

// Config configures a Runner.
type Config struct {
	Link  core.Link
	Guard *guard.Guard

	// CommandTimeout bounds each device call. Zero uses DefaultCommandTimeout.
	CommandTimeout time.Duration

	// Journal receives one entry per step. Nil disables journaling.
	Journal journal.Recorder

	// OnStatus is called after every step and when the runner returns to idle.
	OnStatus func(Status)

	Clock clock.PassiveClock
}

// Runner owns the single background route goroutine.
type Runner struct {
	link     core.Link
	guard    *guard.Guard
	timeout  time.Duration
	journal  journal.Recorder
	onStatus func(Status)
	clock    clock.PassiveClock

	mu   sync.Mutex
	fsm  *fsm.FSM
	run  *run
	last Status
}

type run struct {
	id      string
	route   routeSource
	started time.Time

	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	executed    int
	skipped     int
	failed      int
	discarded   int
	diagnostics []string
	outcome     string
	finishedAt  time.Time
}

func newRun(id string, r routeSource) *run {
	return &run{
		id:     id,
		route:  r,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (rn *run) status(state string) Status {
	return Status{
		State:       state,
		RunID:       rn.id,
		Source:      rn.route.Source(),
		Remaining:   rn.route.Len(),
		Executed:    rn.executed,
		Skipped:     rn.skipped,
		Failed:      rn.failed,
		Discarded:   rn.discarded,
		Diagnostics: append([]string(nil), rn.diagnostics...),
		StartedAt:   rn.started,
		FinishedAt:  rn.finishedAt,
	}
}

// New returns an idle Runner.
func New(cfg Config) *Runner {
	r := &Runner{
		link:     cfg.Link,
		guard:    cfg.Guard,
		timeout:  cfg.CommandTimeout,
		journal:  cfg.Journal,
		onStatus: cfg.OnStatus,
		clock:    cfg.Clock,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultCommandTimeout
	}
	if r.journal == nil {
		r.journal = journal.Nop{}
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	r.fsm = r.newFSM()
	return r
}

// Start begins executing rt in the background and returns the run ID. A nil
// route runs as an empty one. It fails with core.ErrAlreadyRunning when a run
// is in progress, leaving that run untouched.
//
// The runner sits in StateStarting while it waits for an interactive call to
// release the device; r.mu is not held during that wait.
func (r *Runner) Start(ctx context.Context, rt *route.Route) (string, error) {
	r.mu.Lock()
	if r.fsm.Current() != StateIdle {
		r.mu.Unlock()
		return "", core.ErrAlreadyRunning
	}
	id := uuid.NewString()
	if err := r.fsm.Event(ctx, EventStart, id, routeSource(rt)); err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("start route: %w", err)
	}
	r.run.started = r.clock.Now()
	rn := r.run
	r.mu.Unlock()

	acqErr := r.guard.Acquire(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if acqErr != nil {
		r.event(ctx, EventReject)
		r.event(ctx, EventReset)
		metrics.RouteRuns.WithLabelValues(StateRejected).Inc()
		log.Warn("Route run rejected", "runID", id, "error", acqErr.Error())
		if errors.Is(acqErr, core.ErrAlreadyRunning) {
			return "", acqErr
		}
		return "", fmt.Errorf("acquire device: %w", acqErr)
	}

	r.event(ctx, EventRun)
	log.Info("Route run started", "runID", id, "source", rt.Source(), "steps", rt.Len())

	go r.loop(rn)
	return id, nil
}

// Stop signals the running route to stop after its current command. It is a
// no-op when no route runs.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fsm.Current() != StateRunning {
		return
	}
	r.run.cancelOnce.Do(func() { close(r.run.cancel) })
	log.Info("Route stop requested", "runID", r.run.id)
}

// Wait blocks until the runner is idle or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	if r.run == nil || r.fsm.Current() == StateIdle {
		r.mu.Unlock()
		return nil
	}
	done := r.run.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state name.
func (r *Runner) State() string {
	return r.fsm.Current()
}

// Status returns a snapshot of the current or last run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Runner) statusLocked() Status {
	state := r.fsm.Current()
	if state == StateIdle || r.run == nil {
		s := Status{State: StateIdle, LastOutcome: r.last.State}
		if r.run != nil {
			s.RunID = r.last.RunID
			s.Source = r.last.Source
			s.Executed = r.last.Executed
			s.Skipped = r.last.Skipped
			s.Failed = r.last.Failed
			s.Discarded = r.last.Discarded
			s.Diagnostics = r.last.Diagnostics
			s.StartedAt = r.last.StartedAt
			s.FinishedAt = r.last.FinishedAt
		}
		return s
	}
	s := r.run.status(state)
	s.LastOutcome = r.last.State
	return s
}

func (r *Runner) event(ctx context.Context, name string) {
	if err := r.fsm.Event(ctx, name); err != nil {
		log.Error(err, "Runner transition failed", "event", name, "state", r.fsm.Current())
	}
}

func (r *Runner) publish() {
	if r.onStatus == nil {
		return
	}
	r.onStatus(r.Status())
}

func (r *Runner) loop(rn *run) {
	logger := log.WithValues("runID", rn.id)
	// Device calls outlive neither their timeout nor the process, but are not
	// tied to the caller of Start.
	base := context.Background()

	outcome := EventComplete
	for {
		select {
		case <-rn.cancel:
			outcome = EventCancel
		default:
		}
		if outcome == EventCancel {
			break
		}

		step, ok := rn.route.Pop()
		if !ok {
			break
		}
		r.step(base, logger, rn, step)
		r.publish()
	}

	r.mu.Lock()
	if outcome == EventCancel {
		rn.discarded = rn.route.Len()
		rn.route.Clear()
		if rn.discarded > 0 {
			rn.diagnostics = append(rn.diagnostics, fmt.Sprintf("cancelled with %d steps left", rn.discarded))
		}
	}
	r.event(base, outcome)
	metrics.RouteRuns.WithLabelValues(r.fsm.Current()).Inc()
	r.event(base, EventReset)
	last := r.last
	r.mu.Unlock()

	logger.Info("Route run finished", "outcome", last.State, "executed", last.Executed,
		"skipped", last.Skipped, "failed", last.Failed, "discarded", last.Discarded)
	r.publish()
}

func (r *Runner) step(base context.Context, logger log.Logger, rn *run, s route.Step) {
	entry := journal.Entry{
		RunID:   rn.id,
		Source:  journal.SourceRoute,
		Line:    s.Line,
		Command: s.Text,
	}

	if s.Skipped() {
		logger.Warn("Skipping malformed route step", "line", s.Line, "text", s.Text, "error", s.Err.Error())
		r.mu.Lock()
		rn.skipped++
		rn.diagnostics = append(rn.diagnostics, fmt.Sprintf("line %d: %v", s.Line, s.Err))
		r.mu.Unlock()

		entry.Result, entry.Error = journal.ResultSkipped, s.Err.Error()
		r.record(base, logger, entry)
		metrics.CommandsTotal.WithLabelValues(journal.SourceRoute, s.Command.Kind.String(), journal.ResultSkipped).Inc()
		return
	}
	if s.Err != nil {
		logger.Warn("Unknown route command, ignoring", "line", s.Line, "text", s.Text)
		r.mu.Lock()
		rn.diagnostics = append(rn.diagnostics, fmt.Sprintf("line %d: %v", s.Line, s.Err))
		r.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(base, r.timeout)
	start := r.clock.Now()
	err := command.Execute(ctx, r.link, s.Command)
	cancel()
	elapsed := r.clock.Since(start)

	entry.Duration = elapsed
	result := journal.ResultOK
	if err != nil {
		result = journal.ResultError
		entry.Error = err.Error()
		logger.Error(err, "Route command failed, continuing", "line", s.Line, "command", s.Command.String())
	} else {
		logger.Debug("Route command done", "line", s.Line, "command", s.Command.String(), "took", elapsed)
	}
	entry.Result = result

	r.mu.Lock()
	rn.executed++
	if err != nil {
		rn.failed++
		rn.diagnostics = append(rn.diagnostics, fmt.Sprintf("line %d: %v", s.Line, err))
	}
	r.mu.Unlock()

	if s.Command.Kind != command.NoOp {
		metrics.CommandLatency.WithLabelValues(s.Command.Kind.String()).Observe(elapsed.Seconds())
	}
	metrics.CommandsTotal.WithLabelValues(journal.SourceRoute, s.Command.Kind.String(), result).Inc()
	r.record(base, logger, entry)
}

func (r *Runner) record(ctx context.Context, logger log.Logger, e journal.Entry) {
	if err := r.journal.Record(ctx, e); err != nil {
		logger.Error(err, "Failed to journal route command", "command", e.Command)
	}
}
