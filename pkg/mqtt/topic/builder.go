package topic

import (
	"fmt"
)

// Topic segments shared by the pilot and remote operator consoles.
// Changing these breaks existing consoles.
const (
	// SuffixCommand carries operator actions to a pilot (Console -> Pilot).
	// Structure: {root}/command/{droneID}
	SuffixCommand = "command"

	// SuffixCommandAck carries the result of each operator action (Pilot -> Console).
	// Structure: {root}/command/ack/{droneID}
	SuffixCommandAck = "command/ack"

	// SuffixStatus carries route runner and session status, retained (Pilot -> Console).
	// Structure: {root}/status/{droneID}
	SuffixStatus = "status"

	// SuffixOnline carries the online flag and doubles as the last will topic.
	// Structure: {root}/online/{droneID}
	SuffixOnline = "online"
)

// Builder constructs topic strings under a fixed root namespace.
type Builder struct {
	// root is the base namespace for all topics (e.g., "skypeer/v1").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Command returns the topic a pilot subscribes to for operator actions.
func (b *Builder) Command(droneID string) string {
	return b.Build(SuffixCommand, droneID)
}

// CommandAck returns the topic a pilot publishes action results on.
func (b *Builder) CommandAck(droneID string) string {
	return b.Build(SuffixCommandAck, droneID)
}

// CommandAckWildcard matches the acknowledgements of every drone.
func (b *Builder) CommandAckWildcard() string {
	return b.Build(SuffixCommandAck, Wildcard)
}

// Status returns the retained status topic of a drone.
func (b *Builder) Status(droneID string) string {
	return b.Build(SuffixStatus, droneID)
}

// StatusWildcard matches the status topic of every drone.
func (b *Builder) StatusWildcard() string {
	return b.Build(SuffixStatus, Wildcard)
}

// Online returns the online/last-will topic of a drone.
func (b *Builder) Online(droneID string) string {
	return b.Build(SuffixOnline, droneID)
}

// Build joins root, suffix and id: {root}/{suffix}/{id}.
func (b *Builder) Build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
