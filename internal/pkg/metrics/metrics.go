package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every skypeer collector plus the Go and process collectors.
// It is served at /metrics by the operator HTTP server.
var Registry = prometheus.NewRegistry()

var (
	// CommandsTotal counts device commands by origin, kind and outcome.
	// source: interactive/route, result: ok/error/rejected/skipped
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypeer_commands_total",
			Help: "Total number of drone commands handled.",
		},
		[]string{"source", "kind", "result"},
	)

	// CommandLatency records the duration of device calls.
	CommandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skypeer_command_latency_seconds",
			Help:    "Latency of drone link commands.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 7, 10},
		},
		[]string{"kind"},
	)

	// GuardRejections counts interactive commands dropped while a route owned the device.
	GuardRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypeer_guard_rejections_total",
			Help: "Interactive commands rejected because a route was running.",
		},
	)

	// RouteRuns counts finished route runs by outcome (completed/cancelled/rejected).
	RouteRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypeer_route_runs_total",
			Help: "Total number of route runs by outcome.",
		},
		[]string{"outcome"},
	)

	// RouteRunning is 1 while a route owns the device.
	RouteRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypeer_route_running",
			Help: "Whether a route is currently running (1) or not (0).",
		},
	)

	// FramesDispatched counts frames handed to the renderer.
	FramesDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypeer_frames_dispatched_total",
			Help: "Frames handed to the render dispatcher.",
		},
	)

	// FramesSkipped counts polled frames that were not rendered.
	// reason: none/degenerate/stale/busy
	FramesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypeer_frames_skipped_total",
			Help: "Frames skipped by the acquisition loop.",
		},
		[]string{"reason"},
	)

	// SnapshotsTotal counts snapshot attempts by result.
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypeer_snapshots_total",
			Help: "Snapshots taken by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	Registry.MustRegister(CommandsTotal)
	Registry.MustRegister(CommandLatency)
	Registry.MustRegister(GuardRejections)
	Registry.MustRegister(RouteRuns)
	Registry.MustRegister(RouteRunning)
	Registry.MustRegister(FramesDispatched)
	Registry.MustRegister(FramesSkipped)
	Registry.MustRegister(SnapshotsTotal)
}
