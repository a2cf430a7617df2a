package runner

import (
	"context"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/skypeer/internal/pkg/util/fsm"
)

// Runner states.
const (
	StateIdle      = "idle"
	StateStarting  = "starting"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
	StateRejected  = "rejected"
)

const (
	// EventStart (Active) prepares a new run.
	EventStart = "start"
	// EventRun is fired once the guard was acquired.
	EventRun = "run"
	// EventReject is fired when the guard could not be acquired.
	EventReject = "reject"
	// EventComplete is fired when the route is exhausted.
	EventComplete = "complete"
	// EventCancel is fired when the cancel signal was observed.
	EventCancel = "cancel"
	// EventReset returns a finished run to idle.
	EventReset = "reset"
)

func (r *Runner) newFSM() *fsm.FSM {
	events := fsm.Events{
		{Name: EventStart, Src: []string{StateIdle}, Dst: StateStarting},
		{Name: EventRun, Src: []string{StateStarting}, Dst: StateRunning},
		{Name: EventReject, Src: []string{StateStarting}, Dst: StateRejected},
		{Name: EventComplete, Src: []string{StateRunning}, Dst: StateCompleted},
		{Name: EventCancel, Src: []string{StateRunning}, Dst: StateCancelled},
		{Name: EventReset, Src: []string{StateCompleted, StateCancelled, StateRejected}, Dst: StateIdle},
	}

	callbacks := fsm.Callbacks{
		"enter_" + StateStarting:  fsmutil.WrapEvent(r.actionEnterStarting),
		"enter_" + StateCompleted: fsmutil.WrapEvent(r.actionEnterFinished),
		"enter_" + StateCancelled: fsmutil.WrapEvent(r.actionEnterFinished),
		"enter_" + StateRejected:  fsmutil.WrapEvent(r.actionEnterFinished),
		"enter_" + StateIdle:      fsmutil.WrapEvent(r.actionEnterIdle),
	}

	return fsm.NewFSM(StateIdle, events, callbacks)
}

// actionEnterStarting resets the per-run fields. Args: runID, *route.Route.
func (r *Runner) actionEnterStarting(ctx context.Context, e *fsm.Event) error {
	r.run = newRun(e.Args[0].(string), e.Args[1].(routeSource))
	return nil
}

// actionEnterFinished records the outcome of the run.
func (r *Runner) actionEnterFinished(ctx context.Context, e *fsm.Event) error {
	r.run.outcome = e.Dst
	r.run.finishedAt = r.clock.Now()
	r.last = r.run.status(e.Dst)
	return nil
}

// actionEnterIdle clears the cancel signal, releases the device and wakes waiters.
func (r *Runner) actionEnterIdle(ctx context.Context, e *fsm.Event) error {
	if e.Src != StateRejected {
		r.guard.Release()
	}
	r.run.cancelOnce.Do(func() { close(r.run.cancel) })
	close(r.run.done)
	return nil
}
