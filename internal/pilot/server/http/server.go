package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/skypeer/internal/pilot/api"
	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pkg/metrics"
	"github.com/autopeer-io/skypeer/pkg/log"
	"github.com/autopeer-io/skypeer/pkg/options"
)

// FrameStream is the last rendered frame plus change notifications.
type FrameStream interface {
	Frame() *core.Frame
	Subscribe() (<-chan struct{}, func())
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

// NewServer builds the operator HTTP API on top of op. frames may be nil when
// video is disabled.
func NewServer(opts *options.HttpOptions, op api.Operator, frames FrameStream) *Server {
	// Shutdown waits for active handlers without cancelling them, so video
	// streams watch this channel instead.
	closing := make(chan struct{})
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           newHandler(op, frames, opts.StreamFPS, closing),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(func() { close(closing) })

	return &Server{server: srv, options: opts}
}

// NewHandler returns the router serving the operator API.
func NewHandler(op api.Operator, frames FrameStream, streamFPS int) http.Handler {
	return newHandler(op, frames, streamFPS, nil)
}

func newHandler(op api.Operator, frames FrameStream, streamFPS int, closing <-chan struct{}) http.Handler {
	h := &handlers{op: op, frames: frames, streamFPS: streamFPS, closing: closing}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.ok).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.ok).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/video.mjpeg", h.mjpeg).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", h.action(statusAction)).Methods(http.MethodGet)
	v1.HandleFunc("/actions", h.action(bodyAction)).Methods(http.MethodPost)

	v1.HandleFunc("/route/load", h.action(loadAction)).Methods(http.MethodPost)
	v1.HandleFunc("/route/run", h.action(fixedAction(api.ActionRun))).Methods(http.MethodPost)
	v1.HandleFunc("/route/stop", h.action(fixedAction(api.ActionStop))).Methods(http.MethodPost)

	v1.HandleFunc("/command", h.action(fixedAction(api.ActionHandshake))).Methods(http.MethodPost)
	v1.HandleFunc("/takeoff", h.action(fixedAction(api.ActionTakeOff))).Methods(http.MethodPost)
	v1.HandleFunc("/land", h.action(fixedAction(api.ActionLand))).Methods(http.MethodPost)
	v1.HandleFunc("/flip/{direction}", h.action(directionAction(api.ActionFlip))).Methods(http.MethodPost)
	v1.HandleFunc("/move/{direction}", h.action(directionAction(api.ActionMove))).Methods(http.MethodPost)
	v1.HandleFunc("/rotate/{direction}", h.action(directionAction(api.ActionRotate))).Methods(http.MethodPost)

	v1.HandleFunc("/defaults/distance", h.action(valueAction(api.ActionSetDistance))).Methods(http.MethodPut)
	v1.HandleFunc("/defaults/rotation", h.action(valueAction(api.ActionSetRotation))).Methods(http.MethodPut)
	v1.HandleFunc("/video", h.action(videoAction)).Methods(http.MethodPut)
	v1.HandleFunc("/snapshot", h.action(fixedAction(api.ActionSnapshot))).Methods(http.MethodPost)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		log.Info("Stopping HTTP Server")
		return s.server.Shutdown(shutdownCtx)
	}
}
