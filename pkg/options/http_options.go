package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configures the operator HTTP API (REST, MJPEG stream, health and metrics).
type HttpOptions struct {
	// Enabled turns the HTTP server on.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Address with server address.
	Addr string `json:"addr" mapstructure:"addr"`

	// ShutdownTimeout bounds graceful shutdown of open connections.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`

	// StreamFPS caps the MJPEG stream rate served to browsers.
	StreamFPS int `json:"stream-fps" mapstructure:"stream-fps"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Enabled:         true,
		Addr:            "127.0.0.1:8088",
		ShutdownTimeout: 5 * time.Second,
		StreamFPS:       15,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}
	if o.StreamFPS <= 0 || o.StreamFPS > 60 {
		errors = append(errors, fmt.Errorf("--http.stream-fps must be in [1,60], got %d", o.StreamFPS))
	}

	return errors
}

// AddFlags adds flags for the operator HTTP API to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "http.enabled", o.Enabled, "Serve the operator HTTP API.")
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Specify the HTTP server bind address and port.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Grace period for open connections on shutdown.")
	fs.IntVar(&o.StreamFPS, "http.stream-fps", o.StreamFPS, "Maximum frame rate of the /video.mjpeg stream.")
}
