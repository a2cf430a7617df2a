package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/skypeer/internal/pilot/api"
	"github.com/autopeer-io/skypeer/pkg/log"
	pkgmqtt "github.com/autopeer-io/skypeer/pkg/mqtt"
	"github.com/autopeer-io/skypeer/pkg/mqtt/topic"
)

const qos = 1

// Operator is the session driven by remote commands.
type Operator interface {
	api.Operator

	// OnStatus registers a callback for status changes.
	OnStatus(fn func(api.Status))
}

// Server implements the remote control channel: it executes actions received
// on the command topic, answers on the ack topic and keeps a retained status.
type Server struct {
	client  pkgmqtt.Client
	topics  *topic.Builder
	droneID string
	op      Operator
	clock   clock.PassiveClock

	mu      sync.Mutex
	latest  *api.Status
	statusC chan struct{}
}

// NewServer creates a new MQTT server (client).
func NewServer(client pkgmqtt.Client, builder *topic.Builder, droneID string, op Operator) *Server {
	return &Server{
		client:  client,
		topics:  builder,
		droneID: droneID,
		op:      op,
		clock:   clock.RealClock{},
		statusC: make(chan struct{}, 1),
	}
}

// SetWill configures cfg so the broker marks the drone offline when the pilot
// drops without a clean disconnect.
func SetWill(cfg *pkgmqtt.ClientConfig, builder *topic.Builder, droneID string) error {
	payload, err := json.Marshal(api.Online{DroneID: droneID, Online: false, Reason: "connection lost"})
	if err != nil {
		return err
	}
	cfg.WillTopic = builder.Online(droneID)
	cfg.WillPayload = payload
	cfg.WillQoS = qos
	cfg.WillRetain = true
	return nil
}

// Start connects to the broker and subscribes to the command topic.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		log.Info("Disconnecting MQTT client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.publishOnline(shutdownCtx, false, "shutdown")
		s.client.Disconnect(shutdownCtx)
	}()

	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	log.Info("MQTT Connected")

	if err := s.initMQTTSubscriptions(ctx); err != nil {
		return err
	}
	s.publishOnline(ctx, true, "")
	s.onStatus(s.op.Status())
	s.op.OnStatus(s.onStatus)

	s.publishStatuses(ctx)
	return nil
}

func (s *Server) initMQTTSubscriptions(ctx context.Context) error {
	subscriptions := map[string]HandlerFunc{
		s.topics.Command(s.droneID): JSONAdapter(s.handleAction),
	}

	for fullTopic, handler := range subscriptions {
		if err := s.client.Subscribe(ctx, fullTopic, qos, func(c context.Context, _ string, p []byte) {
			if handleErr := handler(c, p); handleErr != nil {
				log.Error(handleErr, "Handler execution failed", "topic", fullTopic)
				s.ack(c, api.Action{}, nil, fmt.Errorf("%w: %w", api.ErrInvalidAction, handleErr))
			}
		}); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", fullTopic, err)
		}
	}

	return nil
}

func (s *Server) handleAction(ctx context.Context, a *api.Action) error {
	log.Info("Remote action received", "action", a.Action, "requestID", a.RequestID)
	result, err := api.Dispatch(ctx, s.op, *a)
	if err != nil {
		log.Warn("Remote action failed", "action", a.Action, "requestID", a.RequestID, "error", err.Error())
	}
	s.ack(ctx, *a, result, err)
	return nil
}

func (s *Server) ack(ctx context.Context, a api.Action, result any, err error) {
	ack := api.Ack{
		RequestID: a.RequestID,
		Action:    a.Action,
		OK:        err == nil,
		Result:    result,
		Time:      s.clock.Now(),
	}
	if err != nil {
		ack.Error = err.Error()
	}
	s.publish(ctx, s.topics.CommandAck(s.droneID), false, ack)
}

// onStatus keeps only the newest status; publishStatuses sends it so callers
// never wait on the broker.
func (s *Server) onStatus(st api.Status) {
	s.mu.Lock()
	s.latest = &st
	s.mu.Unlock()

	select {
	case s.statusC <- struct{}{}:
	default:
	}
}

func (s *Server) publishStatuses(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.statusC:
		}

		s.mu.Lock()
		st := s.latest
		s.latest = nil
		s.mu.Unlock()
		if st != nil {
			s.publishStatus(ctx, *st)
		}
	}
}

func (s *Server) publishStatus(ctx context.Context, st api.Status) {
	s.publish(ctx, s.topics.Status(s.droneID), true, st)
}

func (s *Server) publishOnline(ctx context.Context, online bool, reason string) {
	s.publish(ctx, s.topics.Online(s.droneID), true, api.Online{DroneID: s.droneID, Online: online, Reason: reason})
}

func (s *Server) publish(ctx context.Context, topic string, retain bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error(err, "Failed to encode MQTT payload", "topic", topic)
		return
	}
	if err := s.client.Publish(ctx, topic, qos, retain, payload); err != nil {
		log.Error(err, "Failed to publish", "topic", topic)
	}
}
