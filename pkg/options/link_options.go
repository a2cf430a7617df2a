package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*LinkOptions)(nil)

// Supported drone link drivers.
const (
	LinkDriverSDK = "sdk"
	LinkDriverSim = "sim"
)

// LinkOptions configures the command link to the drone.
type LinkOptions struct {
	// Driver selects the link implementation: "sdk" talks to a real drone, "sim" simulates one.
	Driver string `json:"driver" mapstructure:"driver"`

	// DroneAddr is the drone's command endpoint.
	DroneAddr string `json:"drone-addr" mapstructure:"drone-addr"`

	// LocalAddr is the local UDP endpoint used to send commands and receive responses.
	LocalAddr string `json:"local-addr" mapstructure:"local-addr"`

	// VideoAddr is the local UDP endpoint the drone streams H.264 to.
	VideoAddr string `json:"video-addr" mapstructure:"video-addr"`

	// CommandTimeout bounds every device call.
	CommandTimeout time.Duration `json:"command-timeout" mapstructure:"command-timeout"`

	// SimLatency is the simulated time each motion command takes.
	SimLatency time.Duration `json:"sim-latency" mapstructure:"sim-latency"`
}

func NewLinkOptions() *LinkOptions {
	return &LinkOptions{
		Driver:         LinkDriverSDK,
		DroneAddr:      "192.168.10.1:8889",
		LocalAddr:      ":8889",
		VideoAddr:      ":11111",
		CommandTimeout: 7 * time.Second,
		SimLatency:     300 * time.Millisecond,
	}
}

func (o *LinkOptions) Validate() []error {
	errors := []error{}

	switch o.Driver {
	case LinkDriverSDK:
		for flag, addr := range map[string]string{
			"--link.drone-addr": o.DroneAddr,
			"--link.local-addr": o.LocalAddr,
			"--link.video-addr": o.VideoAddr,
		} {
			if err := ValidateAddress(addr); err != nil {
				errors = append(errors, fmt.Errorf("%s: %w", flag, err))
			}
		}
	case LinkDriverSim:
	default:
		errors = append(errors, fmt.Errorf("--link.driver must be %q or %q, got %q", LinkDriverSDK, LinkDriverSim, o.Driver))
	}

	if o.CommandTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--link.command-timeout must be positive"))
	}

	return errors
}

func (o *LinkOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "link.driver", o.Driver, "Drone link implementation: 'sdk' (UDP text SDK) or 'sim' (simulator).")
	fs.StringVar(&o.DroneAddr, "link.drone-addr", o.DroneAddr, "Drone command endpoint.")
	fs.StringVar(&o.LocalAddr, "link.local-addr", o.LocalAddr, "Local UDP endpoint for commands and responses.")
	fs.StringVar(&o.VideoAddr, "link.video-addr", o.VideoAddr, "Local UDP endpoint receiving the H.264 stream.")
	fs.DurationVar(&o.CommandTimeout, "link.command-timeout", o.CommandTimeout, "Upper bound for a single device command.")
	fs.DurationVar(&o.SimLatency, "link.sim-latency", o.SimLatency, "Simulated duration of a motion command (sim driver only).")
}
