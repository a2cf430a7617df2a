// Package route loads route files and hands their steps out one at a time.
package route

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/autopeer-io/skypeer/internal/pilot/command"
	"github.com/autopeer-io/skypeer/internal/pilot/core"
)

// Step is one non-blank line of a route file.
type Step struct {
	// Line is the 1-based line number in the source file.
	Line    int
	Text    string
	Command command.Command
	// Err is the parse error of the line, if any. Steps with an error other
	// than an unknown keyword are skipped at execution time.
	Err error
}

// Skipped reports whether the step must not reach the device.
func (s Step) Skipped() bool {
	if s.Err == nil {
		return false
	}
	var pe *command.ParseError
	return !errors.As(s.Err, &pe) || !pe.Unknown
}

// Route is an ordered list of steps consumed from the front.
type Route struct {
	source string

	mu    sync.Mutex
	steps []Step
}

// New returns a route holding steps in order.
func New(source string, steps []Step) *Route {
	return &Route{source: source, steps: append([]Step(nil), steps...)}
}

// Parse builds a route from text. Blank lines are dropped; malformed lines
// are kept with their error.
func Parse(source, text string) *Route {
	var steps []Step
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" {
			continue
		}
		cmd, err := command.Parse(line)
		steps = append(steps, Step{Line: i + 1, Text: line, Command: cmd, Err: err})
	}
	return New(source, steps)
}

// Load reads and parses the route file at path.
func Load(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRouteIO, err)
	}
	return Parse(path, string(data)), nil
}

// Source returns the file the route was loaded from.
func (r *Route) Source() string {
	if r == nil {
		return ""
	}
	return r.source
}

// Pop removes and returns the first step.
func (r *Route) Pop() (Step, bool) {
	if r == nil {
		return Step{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.steps) == 0 {
		return Step{}, false
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return s, true
}

// Len returns the number of steps not yet consumed.
func (r *Route) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Remaining returns a copy of the steps not yet consumed.
func (r *Route) Remaining() []Step {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Step(nil), r.steps...)
}

// Clear drops every remaining step.
func (r *Route) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = nil
}

// Clone returns an independent route with the same remaining steps.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	return New(r.source, r.Remaining())
}
