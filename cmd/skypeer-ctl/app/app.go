package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/skypeer/cmd/skypeer-ctl/app/options"
	"github.com/autopeer-io/skypeer/internal/pilot/api"
	"github.com/autopeer-io/skypeer/pkg/app"
	"github.com/autopeer-io/skypeer/pkg/log"
	"github.com/autopeer-io/skypeer/pkg/mqtt"
	"github.com/autopeer-io/skypeer/pkg/mqtt/topic"
)

const (
	commandName = "skypeer-ctl"
	commandDesc = `skypeer-ctl sends one operator action to a skypeer pilot over MQTT and
prints the pilot's acknowledgement.

  skypeer-ctl takeoff
  skypeer-ctl move forward 50
  skypeer-ctl rotate cw
  skypeer-ctl load routes/square.txt
  skypeer-ctl set_distance 80
  skypeer-ctl video off`
)

func NewApp() *app.App {
	opts := options.NewCtlOptions()
	var args []string
	application := app.NewApp(
		commandName,
		"Send an action to a skypeer pilot",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithNoConfig(),
		app.WithValidArgs(func(_ *cobra.Command, a []string) error {
			if _, err := ParseAction(a); err != nil {
				return err
			}
			args = a
			return nil
		}),
		app.WithRunFunc(func() error {
			return run(opts, args)
		}),
	)
	return application
}

func run(opts *options.CtlOptions, args []string) error {
	defer log.Sync()

	action, err := ParseAction(args)
	if err != nil {
		return err
	}
	action.RequestID = uuid.NewString()

	ctx := genericapiserver.SetupSignalContext()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cfg := opts.MqttOptions.ToClientConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = "skypeer-ctl-" + action.RequestID[:8]
	}
	client, err := mqtt.NewClient(cfg)
	if err != nil {
		return err
	}

	ack, err := Send(ctx, client, topic.NewBuilder(opts.MqttOptions.TopicRoot), opts.DroneID, action)
	if err != nil {
		return err
	}
	return printAck(os.Stdout, ack)
}

// Send publishes a to the command topic of droneID and waits for the
// matching acknowledgement.
func Send(ctx context.Context, client mqtt.Client, topics *topic.Builder, droneID string, a api.Action) (api.Ack, error) {
	if err := client.Start(ctx); err != nil {
		return api.Ack{}, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		client.Disconnect(shutdownCtx)
	}()

	if err := client.AwaitConnection(ctx); err != nil {
		return api.Ack{}, fmt.Errorf("connect to broker: %w", err)
	}

	acks := make(chan api.Ack, 1)
	err := client.Subscribe(ctx, topics.CommandAck(droneID), 1, func(_ context.Context, _ string, payload []byte) {
		var ack api.Ack
		if err := json.Unmarshal(payload, &ack); err != nil {
			log.Warn("Ignoring malformed ack", "error", err.Error())
			return
		}
		if ack.RequestID != a.RequestID {
			return
		}
		select {
		case acks <- ack:
		default:
		}
	})
	if err != nil {
		return api.Ack{}, err
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return api.Ack{}, err
	}
	if err := client.Publish(ctx, topics.Command(droneID), 1, false, payload); err != nil {
		return api.Ack{}, fmt.Errorf("publish action: %w", err)
	}

	select {
	case ack := <-acks:
		return ack, nil
	case <-ctx.Done():
		return api.Ack{}, fmt.Errorf("no answer from pilot %q: %w", droneID, ctx.Err())
	}
}

// ParseAction builds an action from command line words.
func ParseAction(args []string) (api.Action, error) {
	if len(args) == 0 {
		return api.Action{}, errors.New("an action is required")
	}
	a := api.Action{Action: args[0]}
	rest := args[1:]

	value := func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%q is not an integer", s)
		}
		a.Value = n
		return nil
	}

	var err error
	switch a.Action {
	case api.ActionLoad:
		if len(rest) != 1 {
			return api.Action{}, errors.New("load takes one route file path")
		}
		a.Path = rest[0]
	case api.ActionFlip:
		if len(rest) != 1 {
			return api.Action{}, errors.New("flip takes one direction (l, r, f, b)")
		}
		a.Direction = rest[0]
	case api.ActionMove, api.ActionRotate:
		if len(rest) < 1 || len(rest) > 2 {
			return api.Action{}, fmt.Errorf("%s takes a direction and an optional value", a.Action)
		}
		a.Direction = rest[0]
		if len(rest) == 2 {
			err = value(rest[1])
		}
	case api.ActionSetDistance, api.ActionSetRotation:
		if len(rest) != 1 {
			return api.Action{}, fmt.Errorf("%s takes one value", a.Action)
		}
		err = value(rest[0])
	case api.ActionVideo:
		if len(rest) != 1 || (rest[0] != "on" && rest[0] != "off") {
			return api.Action{}, errors.New("video takes on or off")
		}
		paused := rest[0] == "off"
		a.Paused = &paused
	default:
		if len(rest) != 0 {
			return api.Action{}, fmt.Errorf("%s takes no argument", a.Action)
		}
	}
	if err != nil {
		return api.Action{}, err
	}
	return a, nil
}

func printAck(w io.Writer, ack api.Ack) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ack); err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("%s failed: %s", ack.Action, ack.Error)
	}
	return nil
}
