package server

import (
	"github.com/autopeer-io/skypeer/internal/pilot/server/http"
	"github.com/autopeer-io/skypeer/internal/pilot/server/mqtt"
	"github.com/autopeer-io/skypeer/pkg/options"
)

type Config struct {
	HttpOptions *options.HttpOptions
	MqttOptions *options.MqttOptions

	DroneID  string
	Operator mqtt.Operator
	Frames   http.FrameStream
}
