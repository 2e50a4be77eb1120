package executor

import "time"

// Action is the closed set of commands the executor understands.
type Action int

// Supported actions. ActionUnknown covers every unrecognised name.
const (
	ActionUnknown Action = iota
	ActionTurnOn
	ActionTurnOff
	ActionBlink
	ActionPulse
)

// Wire names of the actions.
const (
	NameTurnOn  = "TURN_ON"
	NameTurnOff = "TURN_OFF"
	NameBlink   = "BLINK"
	NamePulse   = "PULSE"
)

// DefaultDuration is used when a command carries no usable duration.
const DefaultDuration = 1000 * time.Millisecond

// ParseAction maps a wire name to an Action. Names are case-sensitive.
func ParseAction(name string) Action {
	switch name {
	case NameTurnOn:
		return ActionTurnOn
	case NameTurnOff:
		return ActionTurnOff
	case NameBlink:
		return ActionBlink
	case NamePulse:
		return ActionPulse
	default:
		return ActionUnknown
	}
}

// String returns the wire name, or "UNKNOWN".
func (a Action) String() string {
	switch a {
	case ActionTurnOn:
		return NameTurnOn
	case ActionTurnOff:
		return NameTurnOff
	case ActionBlink:
		return NameBlink
	case ActionPulse:
		return NamePulse
	default:
		return "UNKNOWN"
	}
}

// Timed reports whether the action runs for a duration.
func (a Action) Timed() bool {
	return a == ActionBlink || a == ActionPulse
}

// Command is one parsed request for the executor.
type Command struct {
	// Name is the action as received, kept for messages about unknown actions.
	Name     string
	Action   Action
	Duration time.Duration
}

// NewCommand builds a Command from a wire name and a duration.
// Negative durations are clamped to zero.
func NewCommand(name string, duration time.Duration) Command {
	if duration < 0 {
		duration = 0
	}
	return Command{
		Name:     name,
		Action:   ParseAction(name),
		Duration: duration,
	}
}

// Result is the outcome of one execution.
type Result struct {
	OK      bool
	Message string

	// Err is set when OK is false.
	Err error

	// Elapsed is the monotonic time spent executing.
	Elapsed time.Duration
}
