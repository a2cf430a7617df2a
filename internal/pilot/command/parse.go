package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
)

// ParseError describes a route line that cannot be executed as written.
type ParseError struct {
	Line   string
	Reason string
	// Unknown is set for an unrecognized keyword. Such lines still yield a
	// NoOp command so the route keeps going.
	Unknown bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

var keywords = map[string]Kind{
	"command":  Handshake,
	"takeoff":  TakeOff,
	"land":     Land,
	"up":       Up,
	"down":     Down,
	"forward":  Forward,
	"backward": Backward,
	"left":     Left,
	"right":    Right,
	"cw":       RotateCW,
	"ccw":      RotateCCW,
	"flip":     Flip,
}

// Parse turns one line of the form "<keyword> [<arg>]" into a Command.
// Keywords are case-insensitive. An unknown keyword returns a NoOp command
// together with a *ParseError whose Unknown field is true; any other error
// returns the zero Command.
func Parse(line string) (Command, error) {
	fields := strings.Fields(strings.TrimSuffix(line, "\r"))
	if len(fields) == 0 {
		return Command{}, &ParseError{Line: line, Reason: "empty line"}
	}

	kind, ok := keywords[strings.ToLower(fields[0])]
	if !ok {
		return Command{Kind: NoOp}, &ParseError{Line: line, Reason: fmt.Sprintf("unknown command %q", fields[0]), Unknown: true}
	}
	args := fields[1:]

	switch kind {
	case Handshake, TakeOff, Land:
		if len(args) != 0 {
			return Command{}, &ParseError{Line: line, Reason: fmt.Sprintf("%s takes no argument", kind)}
		}
		return Command{Kind: kind}, nil

	case Flip:
		if len(args) != 1 {
			return Command{}, &ParseError{Line: line, Reason: "flip needs exactly one direction (l, r, f, b)"}
		}
		dir := core.FlipDirection(strings.ToLower(args[0]))
		if !dir.Valid() {
			return Command{}, &ParseError{Line: line, Reason: fmt.Sprintf("invalid flip direction %q", args[0])}
		}
		return Command{Kind: Flip, Flip: dir}, nil

	default:
		if len(args) != 1 {
			return Command{}, &ParseError{Line: line, Reason: fmt.Sprintf("%s needs exactly one integer argument", kind)}
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, &ParseError{Line: line, Reason: fmt.Sprintf("argument %q is not an integer", args[0])}
		}
		if n <= 0 {
			return Command{}, &ParseError{Line: line, Reason: fmt.Sprintf("argument %d must be positive", n)}
		}
		return Command{Kind: kind, Value: n}, nil
	}
}
