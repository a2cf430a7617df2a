package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/skypeer/cmd/skypeer-pilot/app/options"
	"github.com/autopeer-io/skypeer/pkg/app"
	"github.com/autopeer-io/skypeer/pkg/log"
)

const (
	commandName = "skypeer-pilot"
	commandDesc = `The skypeer pilot teleoperates a Tello class drone. It keeps the command
link, runs flight routes loaded from text files, pulls the live video and
exposes every operator action over HTTP and, optionally, MQTT.`
)

func NewApp() *app.App {
	opts := options.NewPilotOptions()
	application := app.NewApp(
		commandName,
		"Launch a skypeer drone pilot",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithSubCommands(newRouteCommand(), newJournalCommand()),
	)
	return application
}

func run(opts *options.PilotOptions) app.RunFunc {
	return func() error {
		defer log.Sync()
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		p, err := cfg.NewPilot(ctx)
		if err != nil {
			return fmt.Errorf("failed to create pilot: %w", err)
		}

		return p.Run(ctx)
	}
}
