package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PilotOptions)(nil)

// Limits of the operator adjustable defaults.
const (
	MinDistance = 2
	MaxDistance = 500
	MinRotation = 1
	MaxRotation = 360
)

// PilotOptions holds the session level settings of the pilot.
type PilotOptions struct {
	// DroneID names the drone in logs, topics and the journal.
	DroneID string `json:"drone-id" mapstructure:"drone-id"`

	// DefaultDistance is used by move commands issued without a distance (cm).
	DefaultDistance int `json:"default-distance" mapstructure:"default-distance"`

	// DefaultRotation is used by rotate commands issued without an angle (degrees).
	DefaultRotation int `json:"default-rotation" mapstructure:"default-rotation"`

	// SnapshotDir receives snapshot image files.
	SnapshotDir string `json:"snapshot-dir" mapstructure:"snapshot-dir"`

	// SnapshotFormat is "jpg" or "png".
	SnapshotFormat string `json:"snapshot-format" mapstructure:"snapshot-format"`

	// RouteFile is loaded at startup when set.
	RouteFile string `json:"route-file" mapstructure:"route-file"`

	// WatchRoute reloads the loaded route file when it changes on disk while idle.
	WatchRoute bool `json:"watch-route" mapstructure:"watch-route"`

	// JournalPath is the SQLite command journal. Empty disables journaling.
	JournalPath string `json:"journal-path" mapstructure:"journal-path"`
}

func NewPilotOptions() *PilotOptions {
	return &PilotOptions{
		DroneID:         "tello",
		DefaultDistance: 20,
		DefaultRotation: 30,
		SnapshotDir:     "./img/",
		SnapshotFormat:  "jpg",
		JournalPath:     "skypeer-journal.db",
	}
}

func (o *PilotOptions) Validate() []error {
	errors := []error{}

	if o.DroneID == "" {
		errors = append(errors, fmt.Errorf("--pilot.drone-id must not be empty"))
	}
	if o.DefaultDistance < MinDistance || o.DefaultDistance > MaxDistance {
		errors = append(errors, fmt.Errorf("--pilot.default-distance must be in [%d,%d], got %d", MinDistance, MaxDistance, o.DefaultDistance))
	}
	if o.DefaultRotation < MinRotation || o.DefaultRotation > MaxRotation {
		errors = append(errors, fmt.Errorf("--pilot.default-rotation must be in [%d,%d], got %d", MinRotation, MaxRotation, o.DefaultRotation))
	}
	if o.SnapshotFormat != "jpg" && o.SnapshotFormat != "png" {
		errors = append(errors, fmt.Errorf("--pilot.snapshot-format must be 'jpg' or 'png', got %q", o.SnapshotFormat))
	}
	if o.WatchRoute && o.RouteFile == "" {
		errors = append(errors, fmt.Errorf("--pilot.watch-route requires --pilot.route-file"))
	}

	return errors
}

func (o *PilotOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DroneID, "pilot.drone-id", o.DroneID, "Identifier of the drone in logs, topics and the journal.")
	fs.IntVar(&o.DefaultDistance, "pilot.default-distance", o.DefaultDistance, "Default move distance in cm (2-500).")
	fs.IntVar(&o.DefaultRotation, "pilot.default-rotation", o.DefaultRotation, "Default rotation in degrees (1-360).")
	fs.StringVar(&o.SnapshotDir, "pilot.snapshot-dir", o.SnapshotDir, "Directory receiving snapshot images.")
	fs.StringVar(&o.SnapshotFormat, "pilot.snapshot-format", o.SnapshotFormat, "Snapshot image format: 'jpg' or 'png'.")
	fs.StringVar(&o.RouteFile, "pilot.route-file", o.RouteFile, "Route file loaded at startup.")
	fs.BoolVar(&o.WatchRoute, "pilot.watch-route", o.WatchRoute, "Reload the route file when it changes on disk while no route is running.")
	fs.StringVar(&o.JournalPath, "pilot.journal-path", o.JournalPath, "SQLite command journal path; empty disables the journal.")
}
