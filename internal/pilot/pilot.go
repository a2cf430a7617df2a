// Package pilot owns a teleoperation session: the drone link, the loaded
// route and its runner, the frame acquisition loop and the operator servers.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/skypeer/internal/pilot/api"
	"github.com/autopeer-io/skypeer/internal/pilot/command"
	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/guard"
	"github.com/autopeer-io/skypeer/internal/pilot/journal"
	"github.com/autopeer-io/skypeer/internal/pilot/route"
	"github.com/autopeer-io/skypeer/internal/pilot/runner"
	"github.com/autopeer-io/skypeer/internal/pilot/snapshot"
	"github.com/autopeer-io/skypeer/internal/pilot/video"
	"github.com/autopeer-io/skypeer/internal/pkg/metrics"
	"github.com/autopeer-io/skypeer/pkg/log"
	"github.com/autopeer-io/skypeer/pkg/options"
)

// shutdownTimeout bounds waiting for the route runner during shutdown.
const shutdownTimeout = 10 * time.Second

var _ api.Operator = (*Pilot)(nil)

// Server is a long running component stopped by cancelling its context.
type Server interface {
	Start(ctx context.Context) error
}

// Pilot is a teleoperation session.
type Pilot struct {
	droneID string
	link    core.Link
	guard   *guard.Guard
	runner  *runner.Runner
	latest  *video.Latest
	loop    *video.Loop
	snap    *snapshot.Taker
	journal journal.Recorder
	closer  io.Closer
	timeout time.Duration
	clock   clock.PassiveClock

	routeFile  string
	watchRoute bool
	server     Server

	mu              sync.Mutex
	route           *route.Route
	routePending    bool
	defaultDistance int
	defaultRotation int
	videoPaused     bool

	listenersMu sync.RWMutex
	listeners   []func(api.Status)

	// life is held shared by every operation that reaches the link, and
	// exclusively to flip closing.
	life    sync.RWMutex
	closing bool
}

// Deps are the collaborators of a Pilot. Config.NewPilot fills them from
// options; tests build them directly.
type Deps struct {
	DroneID string
	Link    core.Link

	// Journal is optional. When it is also an io.Closer it is closed on shutdown.
	Journal journal.Recorder

	Snapshot *snapshot.Taker

	// Dispatcher renders into Latest. Nil disables frame acquisition.
	Dispatcher   video.Dispatcher
	Latest       *video.Latest
	PollInterval time.Duration

	CommandTimeout  time.Duration
	DefaultDistance int
	DefaultRotation int

	RouteFile  string
	WatchRoute bool

	Clock clock.WithTicker
}

// New assembles a Pilot from deps.
func New(deps Deps) *Pilot {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}
	if deps.Latest == nil {
		deps.Latest = video.NewLatest()
	}
	if deps.CommandTimeout <= 0 {
		deps.CommandTimeout = runner.DefaultCommandTimeout
	}
	if deps.DefaultDistance == 0 {
		deps.DefaultDistance = 20
	}
	if deps.DefaultRotation == 0 {
		deps.DefaultRotation = 30
	}

	p := &Pilot{
		droneID:         deps.DroneID,
		link:            deps.Link,
		guard:           guard.New(),
		latest:          deps.Latest,
		snap:            deps.Snapshot,
		journal:         deps.Journal,
		timeout:         deps.CommandTimeout,
		clock:           deps.Clock,
		routeFile:       deps.RouteFile,
		watchRoute:      deps.WatchRoute,
		defaultDistance: deps.DefaultDistance,
		defaultRotation: deps.DefaultRotation,
	}
	if c, ok := deps.Journal.(io.Closer); ok {
		p.closer = c
	}
	if deps.Dispatcher != nil {
		p.loop = video.NewLoop(video.Config{
			Link:       deps.Link,
			Dispatcher: deps.Dispatcher,
			Interval:   deps.PollInterval,
			Clock:      deps.Clock,
		})
	}
	p.runner = runner.New(runner.Config{
		Link:           deps.Link,
		Guard:          p.guard,
		CommandTimeout: deps.CommandTimeout,
		Journal:        deps.Journal,
		OnStatus:       func(runner.Status) { p.notify() },
		Clock:          deps.Clock,
	})
	return p
}

// SetServer installs the operator servers started by Run.
func (p *Pilot) SetServer(s Server) {
	p.server = s
}

// OnStatus registers fn to be called whenever the session status changes.
func (p *Pilot) OnStatus(fn func(api.Status)) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Pilot) notify() {
	p.listenersMu.RLock()
	listeners := slices.Clone(p.listeners)
	p.listenersMu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	st := p.Status()
	for _, fn := range listeners {
		fn(st)
	}
}

// Latest returns the holder of the last rendered frame.
func (p *Pilot) Latest() *video.Latest {
	return p.latest
}

// LoadRoute replaces the session route with the file at path. It fails with
// core.ErrRouteBusy while a route runs, and with core.ErrRouteIO when the file
// cannot be read; the current route is kept in both cases.
func (p *Pilot) LoadRoute(ctx context.Context, path string) (api.RouteInfo, error) {
	var info api.RouteInfo
	err := p.guard.WhenIdle(ctx, func() error {
		rt, err := route.Load(path)
		if err != nil {
			return err
		}

		info = api.RouteInfo{Source: path, Steps: rt.Len()}
		for _, s := range rt.Remaining() {
			if s.Err != nil {
				info.Diagnostics = append(info.Diagnostics, fmt.Sprintf("line %d: %v", s.Line, s.Err))
				if s.Skipped() {
					info.Malformed++
				}
			}
		}

		p.mu.Lock()
		p.route = rt
		p.routePending = true
		p.mu.Unlock()
		return nil
	})
	if err != nil {
		log.Warn("Route not loaded", "path", path, "error", err.Error())
		return api.RouteInfo{}, err
	}

	log.Info("Route loaded", "path", path, "steps", info.Steps, "malformed", info.Malformed)
	p.notify()
	return info, nil
}

// RunRoute starts the loaded route in the background and returns its run ID.
// Running without a loaded route completes immediately.
func (p *Pilot) RunRoute(ctx context.Context) (string, error) {
	leave, err := p.enter()
	if err != nil {
		return "", err
	}
	defer leave()

	p.mu.Lock()
	rt := p.route
	p.mu.Unlock()

	id, err := p.runner.Start(ctx, rt)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	if p.route == rt {
		p.routePending = false
	}
	p.mu.Unlock()
	p.notify()
	return id, nil
}

// StopRoute asks the running route to stop after its current command.
func (p *Pilot) StopRoute() {
	p.runner.Stop()
}

// WaitRoute blocks until no route runs.
func (p *Pilot) WaitRoute(ctx context.Context) error {
	return p.runner.Wait(ctx)
}

func (p *Pilot) Handshake(ctx context.Context) error {
	return p.interactive(ctx, command.Command{Kind: command.Handshake})
}

func (p *Pilot) TakeOff(ctx context.Context) error {
	return p.interactive(ctx, command.Command{Kind: command.TakeOff})
}

func (p *Pilot) Land(ctx context.Context) error {
	return p.interactive(ctx, command.Command{Kind: command.Land})
}

func (p *Pilot) Flip(ctx context.Context, dir core.FlipDirection) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: flip direction %q", core.ErrOutOfRange, dir)
	}
	return p.interactive(ctx, command.Command{Kind: command.Flip, Flip: dir})
}

// Move moves by cm, or by the default distance when cm is zero.
func (p *Pilot) Move(ctx context.Context, dir core.MoveDirection, cm int) error {
	kind, ok := command.MoveKind(dir)
	if !ok {
		return fmt.Errorf("%w: move direction %q", core.ErrOutOfRange, dir)
	}
	if cm == 0 {
		p.mu.Lock()
		cm = p.defaultDistance
		p.mu.Unlock()
	}
	if err := checkRange("distance", cm, options.MinDistance, options.MaxDistance); err != nil {
		return err
	}
	return p.interactive(ctx, command.Command{Kind: kind, Value: cm})
}

// Rotate rotates by degrees, or by the default rotation when degrees is zero.
func (p *Pilot) Rotate(ctx context.Context, dir core.RotateDirection, degrees int) error {
	kind, ok := command.RotateKind(dir)
	if !ok {
		return fmt.Errorf("%w: rotate direction %q", core.ErrOutOfRange, dir)
	}
	if degrees == 0 {
		p.mu.Lock()
		degrees = p.defaultRotation
		p.mu.Unlock()
	}
	if err := checkRange("rotation", degrees, options.MinRotation, options.MaxRotation); err != nil {
		return err
	}
	return p.interactive(ctx, command.Command{Kind: kind, Value: degrees})
}

func (p *Pilot) SetDefaultDistance(cm int) error {
	if err := checkRange("distance", cm, options.MinDistance, options.MaxDistance); err != nil {
		return err
	}
	p.mu.Lock()
	p.defaultDistance = cm
	p.mu.Unlock()
	log.Info("Default distance set", "cm", cm)
	p.notify()
	return nil
}

func (p *Pilot) SetDefaultRotation(degrees int) error {
	if err := checkRange("rotation", degrees, options.MinRotation, options.MaxRotation); err != nil {
		return err
	}
	p.mu.Lock()
	p.defaultRotation = degrees
	p.mu.Unlock()
	log.Info("Default rotation set", "degrees", degrees)
	p.notify()
	return nil
}

// SetVideoPaused freezes or unfreezes the video on the last frame.
func (p *Pilot) SetVideoPaused(paused bool) {
	leave, err := p.enter()
	if err != nil {
		return
	}
	defer leave()

	p.mu.Lock()
	p.videoPaused = paused
	p.mu.Unlock()
	p.link.SetVideoFreeze(paused)
	log.Info("Video freeze toggled", "paused", paused)
	p.notify()
}

// Snapshot writes the last rendered frame to disk.
func (p *Pilot) Snapshot(ctx context.Context) (snapshot.Result, error) {
	if p.snap == nil {
		return snapshot.Result{}, errors.New("snapshots are disabled")
	}
	return p.snap.Take(ctx, p.latest)
}

// Status returns the session status.
func (p *Pilot) Status() api.Status {
	p.mu.Lock()
	st := api.Status{
		DroneID:         p.droneID,
		RoutePending:    p.routePending,
		RouteSource:     p.route.Source(),
		RouteSteps:      p.route.Len(),
		DefaultDistance: p.defaultDistance,
		DefaultRotation: p.defaultRotation,
		VideoPaused:     p.videoPaused,
	}
	p.mu.Unlock()

	st.Runner = p.runner.Status()
	if p.loop != nil {
		st.Video = p.loop.Stats()
	}
	st.Time = p.clock.Now()
	return st
}

func (p *Pilot) interactive(ctx context.Context, c command.Command) error {
	leave, err := p.enter()
	if err != nil {
		log.Warn("Interactive command refused during shutdown", "command", c.String())
		return err
	}
	defer leave()

	kind := c.Kind.String()
	entry := journal.Entry{Source: journal.SourceInteractive, Command: c.String()}

	start := p.clock.Now()
	err = p.guard.Do(ctx, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return command.Execute(cctx, p.link, c)
	})
	elapsed := p.clock.Since(start)

	switch {
	case errors.Is(err, core.ErrGuardRejected):
		entry.Result = journal.ResultRejected
		log.Warn("Interactive command rejected, a route is running", "command", entry.Command)
	case err != nil:
		entry.Result = journal.ResultError
		log.Error(err, "Interactive command failed", "command", entry.Command)
	default:
		entry.Result = journal.ResultOK
		log.Info("Interactive command done", "command", entry.Command, "took", elapsed)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if entry.Result != journal.ResultRejected {
		entry.Duration = elapsed
		metrics.CommandLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
	metrics.CommandsTotal.WithLabelValues(journal.SourceInteractive, kind, entry.Result).Inc()

	if jerr := p.journal.Record(context.WithoutCancel(ctx), entry); jerr != nil {
		log.Error(jerr, "Failed to journal interactive command", "command", entry.Command)
	}
	return err
}

// enter admits an operation that may reach the link. The returned func must
// be called when the operation is done.
func (p *Pilot) enter() (func(), error) {
	p.life.RLock()
	if p.closing {
		p.life.RUnlock()
		return nil, core.ErrShuttingDown
	}
	return p.life.RUnlock, nil
}

// beginShutdown waits for admitted operations and refuses new ones.
func (p *Pilot) beginShutdown() {
	p.life.Lock()
	p.closing = true
	p.life.Unlock()
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d not in [%d, %d]", core.ErrOutOfRange, name, v, lo, hi)
	}
	return nil
}
