package server

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/skypeer/internal/pilot/server/http"
	"github.com/autopeer-io/skypeer/internal/pilot/server/mqtt"
	"github.com/autopeer-io/skypeer/pkg/log"
	pkgmqtt "github.com/autopeer-io/skypeer/pkg/mqtt"
	"github.com/autopeer-io/skypeer/pkg/mqtt/topic"
)

// Server defines the common interface for all sub-servers (http, mqtt).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of the operator servers.
type Manager struct {
	servers []Server
}

// NewManager creates a server manager with every enabled sub-server.
func NewManager(cfg *Config) (*Manager, error) {
	var servers []Server

	if cfg.HttpOptions != nil && cfg.HttpOptions.Enabled {
		servers = append(servers, http.NewServer(cfg.HttpOptions, cfg.Operator, cfg.Frames))
	}

	if cfg.MqttOptions != nil && cfg.MqttOptions.Enabled {
		clientCfg := cfg.MqttOptions.ToClientConfig()
		if clientCfg.ClientID == "" {
			clientCfg.ClientID = "skypeer-pilot-" + cfg.DroneID
		}
		topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)
		if err := mqtt.SetWill(clientCfg, topics, cfg.DroneID); err != nil {
			return nil, fmt.Errorf("failed to build mqtt will: %w", err)
		}

		client, err := pkgmqtt.NewClient(clientCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		servers = append(servers, mqtt.NewServer(client, topics, cfg.DroneID, cfg.Operator))
	}

	return &Manager{
		servers: servers,
	}, nil
}

// Len returns the number of enabled sub-servers.
func (m *Manager) Len() int {
	return len(m.servers)
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.servers) == 0 {
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
