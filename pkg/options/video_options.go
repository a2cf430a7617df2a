package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*VideoOptions)(nil)

// Render dispatch modes.
const (
	RenderModeSync  = "sync"
	RenderModeAsync = "async"
	RenderModeAuto  = "auto"
)

// VideoOptions configures frame decoding and the acquisition loop.
type VideoOptions struct {
	// Enabled starts the video stream and the acquisition loop.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// FFmpegPath is the decoder binary used by the sdk link.
	FFmpegPath string `json:"ffmpeg-path" mapstructure:"ffmpeg-path"`

	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`

	// PollInterval is the acquisition cadence when the link cannot notify new frames.
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`

	// RenderMode chooses how frames reach the display sink: sync, async or auto.
	RenderMode string `json:"render-mode" mapstructure:"render-mode"`
}

func NewVideoOptions() *VideoOptions {
	return &VideoOptions{
		Enabled:      true,
		FFmpegPath:   "ffmpeg",
		Width:        960,
		Height:       720,
		PollInterval: 30 * time.Millisecond,
		RenderMode:   RenderModeAuto,
	}
}

func (o *VideoOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	errors := []error{}

	if o.Width <= 0 || o.Height <= 0 {
		errors = append(errors, fmt.Errorf("--video.width and --video.height must be positive"))
	}
	if o.PollInterval <= 0 {
		errors = append(errors, fmt.Errorf("--video.poll-interval must be positive"))
	}
	switch o.RenderMode {
	case RenderModeSync, RenderModeAsync, RenderModeAuto:
	default:
		errors = append(errors, fmt.Errorf("--video.render-mode must be sync, async or auto, got %q", o.RenderMode))
	}

	return errors
}

func (o *VideoOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "video.enabled", o.Enabled, "Start the video stream and frame acquisition.")
	fs.StringVar(&o.FFmpegPath, "video.ffmpeg-path", o.FFmpegPath, "Path of the ffmpeg binary used to decode H.264.")
	fs.IntVar(&o.Width, "video.width", o.Width, "Decoded frame width in pixels.")
	fs.IntVar(&o.Height, "video.height", o.Height, "Decoded frame height in pixels.")
	fs.DurationVar(&o.PollInterval, "video.poll-interval", o.PollInterval, "Frame polling interval when the link has no frame notification.")
	fs.StringVar(&o.RenderMode, "video.render-mode", o.RenderMode, "Render dispatch: 'sync', 'async' (single in-flight render, drop while busy) or 'auto'.")
}
