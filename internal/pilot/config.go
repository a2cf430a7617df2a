package pilot

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/journal"
	"github.com/autopeer-io/skypeer/internal/pilot/link/sdk"
	"github.com/autopeer-io/skypeer/internal/pilot/link/sim"
	"github.com/autopeer-io/skypeer/internal/pilot/server"
	"github.com/autopeer-io/skypeer/internal/pilot/snapshot"
	"github.com/autopeer-io/skypeer/internal/pilot/video"
	"github.com/autopeer-io/skypeer/pkg/log"
	"github.com/autopeer-io/skypeer/pkg/options"
)

// simFrameInterval is the synthetic video period of the simulated link.
const simFrameInterval = 33 * time.Millisecond

type Config struct {
	PilotOptions *options.PilotOptions
	LinkOptions  *options.LinkOptions
	VideoOptions *options.VideoOptions
	HttpOptions  *options.HttpOptions
	MqttOptions  *options.MqttOptions
	S3Options    *options.S3Options
}

// NewPilot dials the drone and assembles a session with its servers.
func (cfg *Config) NewPilot(ctx context.Context) (*Pilot, error) {
	link, err := cfg.newLink(ctx)
	if err != nil {
		return nil, err
	}

	var rec journal.Recorder
	if cfg.PilotOptions.JournalPath != "" {
		j, err := journal.Open(cfg.PilotOptions.JournalPath)
		if err != nil {
			link.Close()
			return nil, err
		}
		rec = j
		log.Info("Command journal opened", "path", cfg.PilotOptions.JournalPath)
	}

	var uploader snapshot.Uploader
	if cfg.S3Options != nil && cfg.S3Options.Enabled {
		uploader, err = snapshot.NewMinIOUploader(cfg.S3Options)
		if err != nil {
			log.Warn("Snapshot upload disabled", "error", err.Error())
			uploader = nil
		} else if c, ok := uploader.(interface{ CheckBucket(context.Context) error }); ok {
			if err := c.CheckBucket(ctx); err != nil {
				log.Warn("Snapshot bucket is not reachable, uploads may fail", "error", err.Error())
			}
		}
	}

	latest := video.NewLatest()
	var dispatcher video.Dispatcher
	if cfg.VideoOptions.Enabled {
		dispatcher, err = video.NewDispatcher(cfg.VideoOptions.RenderMode, latest)
		if err != nil {
			link.Close()
			return nil, err
		}
	}

	p := New(Deps{
		DroneID: cfg.PilotOptions.DroneID,
		Link:    link,
		Journal: rec,
		Snapshot: snapshot.New(snapshot.Config{
			Dir:      cfg.PilotOptions.SnapshotDir,
			Format:   cfg.PilotOptions.SnapshotFormat,
			Uploader: uploader,
		}),
		Dispatcher:      dispatcher,
		Latest:          latest,
		PollInterval:    cfg.VideoOptions.PollInterval,
		CommandTimeout:  cfg.LinkOptions.CommandTimeout,
		DefaultDistance: cfg.PilotOptions.DefaultDistance,
		DefaultRotation: cfg.PilotOptions.DefaultRotation,
		RouteFile:       cfg.PilotOptions.RouteFile,
		WatchRoute:      cfg.PilotOptions.WatchRoute,
	})

	srvConfig := &server.Config{
		HttpOptions: cfg.HttpOptions,
		MqttOptions: cfg.MqttOptions,
		DroneID:     cfg.PilotOptions.DroneID,
		Operator:    p,
	}
	if cfg.VideoOptions.Enabled {
		srvConfig.Frames = latest
	}
	srvManager, err := server.NewManager(srvConfig)
	if err != nil {
		p.closeResources()
		return nil, fmt.Errorf("failed to init server manager: %w", err)
	}
	p.SetServer(srvManager)

	return p, nil
}

func (cfg *Config) newLink(ctx context.Context) (core.Link, error) {
	lo := cfg.LinkOptions
	vo := cfg.VideoOptions

	switch lo.Driver {
	case options.LinkDriverSim:
		simCfg := sim.Config{Latency: lo.SimLatency}
		if vo.Enabled {
			simCfg.FrameInterval = simFrameInterval
			simCfg.Width, simCfg.Height = vo.Width, vo.Height
		}
		log.Info("Using simulated drone link", "latency", lo.SimLatency)
		return sim.New(simCfg), nil
	case options.LinkDriverSDK:
		sdkCfg := sdk.Config{
			DroneAddr:      lo.DroneAddr,
			LocalAddr:      lo.LocalAddr,
			CommandTimeout: lo.CommandTimeout,
		}
		if vo.Enabled {
			sdkCfg.Video = &sdk.VideoConfig{
				ListenAddr: lo.VideoAddr,
				FFmpegPath: vo.FFmpegPath,
				Width:      vo.Width,
				Height:     vo.Height,
			}
		}
		l, err := sdk.Dial(ctx, sdkCfg)
		if err != nil {
			return nil, fmt.Errorf("dial drone: %w", err)
		}
		log.Info("Drone link ready", "drone", lo.DroneAddr, "local", l.LocalAddr().String())
		return l, nil
	}
	return nil, fmt.Errorf("unknown link driver %q", lo.Driver)
}
