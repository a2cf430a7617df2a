package pilot

import (
	"context"
	"errors"
	"sync"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/route"
	"github.com/autopeer-io/skypeer/pkg/log"
)

// Run brings the session up and blocks until ctx is done or a server fails.
//
// Shutdown first refuses new device work and waits for admitted calls, then
// stops the servers and the acquisition loop, stops the route runner and
// waits for it to go idle, closes the journal and finally the link.
func (p *Pilot) Run(ctx context.Context) error {
	log.Info("Starting pilot session", "drone", p.droneID)

	if err := p.Handshake(ctx); err != nil {
		log.Warn("Handshake failed, continuing without SDK mode", "error", err.Error())
	}
	if vs, ok := p.link.(core.VideoStreamer); ok && p.loop != nil {
		if err := vs.StreamOn(ctx); err != nil {
			log.Warn("Failed to switch video stream on", "error", err.Error())
		}
	}
	if p.routeFile != "" {
		// Failures are logged by LoadRoute.
		_, _ = p.LoadRoute(ctx, p.routeFile)
	}

	acqCtx, stopAcq := context.WithCancel(context.Background())
	var acq sync.WaitGroup
	if p.loop != nil {
		acq.Add(1)
		go func() {
			defer acq.Done()
			if err := p.loop.Run(acqCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(err, "Frame acquisition stopped")
			}
		}()
	}
	if p.watchRoute && p.routeFile != "" {
		acq.Add(1)
		go func() {
			defer acq.Done()
			w := route.NewWatcher(p.routeFile, p.reloadRoute)
			if err := w.Start(acqCtx); err != nil {
				log.Error(err, "Route watcher stopped", "path", p.routeFile)
			}
		}()
	}

	srvCtx, stopSrv := context.WithCancel(context.Background())
	var srvErr chan error
	if p.server != nil {
		srvErr = make(chan error, 1)
		go func() { srvErr <- p.server.Start(srvCtx) }()
	}

	var runErr error
	srvDone := false
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		srvDone = true
		if err != nil {
			runErr = err
			log.Error(err, "Server failed, shutting down")
		}
	}

	log.Info("Shutting down pilot session")
	p.beginShutdown()

	stopSrv()
	if srvErr != nil && !srvDone {
		if err := <-srvErr; err != nil {
			log.Error(err, "Server stopped with error")
		}
	}

	stopAcq()
	acq.Wait()

	p.runner.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := p.runner.Wait(waitCtx); err != nil {
		log.Warn("Route runner did not stop in time", "error", err.Error())
	}
	cancel()

	p.closeResources()

	log.Info("Pilot session stopped")
	return runErr
}

func (p *Pilot) closeResources() {
	if p.closer != nil {
		if err := p.closer.Close(); err != nil {
			log.Error(err, "Failed to close journal")
		}
	}
	if err := p.link.Close(); err != nil {
		log.Error(err, "Failed to close drone link")
	}
}

// reloadRoute is the watcher callback. A running route is never replaced.
func (p *Pilot) reloadRoute(path string) {
	if _, err := p.LoadRoute(context.Background(), path); err != nil {
		log.Warn("Route changed on disk but was not reloaded", "path", path, "error", err.Error())
	}
}
