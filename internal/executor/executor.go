package executor

import "fmt"

// Actuator is the output the executor drives.
type Actuator interface {
	SetState(on bool)
	SetIntensity(level uint8)
}

// Logger is the logging interface used by the executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures an Executor. Zero values select the defaults.
type Options struct {
	Clock  Clock
	Timing *Timing
	Logger Logger
}

// Executor is the Command Executor.
//
// Execute is synchronous. It is not safe to run two executions on the same
// actuator concurrently; the device event loop guarantees one at a time.
type Executor struct {
	actuator Actuator
	clock    Clock
	timing   Timing
	logger   Logger
}

// New creates an executor driving actuator.
func New(actuator Actuator, opts Options) *Executor {
	e := &Executor{
		actuator: actuator,
		clock:    opts.Clock,
		timing:   DefaultTiming(),
		logger:   opts.Logger,
	}
	if e.clock == nil {
		e.clock = RealClock()
	}
	if opts.Timing != nil {
		e.timing = *opts.Timing
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	return e
}

// Timing returns the step timing in use.
func (e *Executor) Timing() Timing {
	return e.timing
}

// Execute runs cmd to completion and reports the outcome.
func (e *Executor) Execute(cmd Command) Result {
	start := e.clock.Now()
	e.logger.Info("command started", "action", cmd.Action.String(), "duration_ms", cmd.Duration.Milliseconds())

	var result Result
	switch cmd.Action {
	case ActionTurnOn:
		e.actuator.SetState(true)
		result = Result{OK: true, Message: "LED turned ON"}
	case ActionTurnOff:
		e.actuator.SetState(false)
		result = Result{OK: true, Message: "LED turned OFF"}
	case ActionBlink:
		seq := newBlinkSequence(cmd.Duration, e.timing)
		e.run(seq)
		result = Result{OK: true, Message: fmt.Sprintf("Blinked %d times", seq.cycles)}
	case ActionPulse:
		seq := newPulseSequence(e.clock, start, cmd.Duration, e.timing)
		e.run(seq)
		result = Result{OK: true, Message: fmt.Sprintf("Pulsed for %d ms (%d full fades)", cmd.Duration.Milliseconds(), seq.passes)}
	default:
		result = Result{
			OK:      false,
			Message: fmt.Sprintf("Unknown command: %s", cmd.Name),
			Err:     fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Name),
		}
	}

	result.Elapsed = e.clock.Now().Sub(start)

	if !result.OK {
		e.logger.Warn("command failed", "action", cmd.Name, "error", result.Err)
		return result
	}
	e.logger.Info("command finished",
		"action", cmd.Action.String(),
		"message", result.Message,
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	return result
}

// run drives every step of seq and then forces the output OFF,
// even if a step panics.
func (e *Executor) run(seq sequence) {
	defer e.actuator.SetState(false)

	for {
		st, ok := seq.next()
		if !ok {
			return
		}
		e.actuator.SetIntensity(st.level)
		if st.hold > 0 {
			e.clock.Sleep(st.hold)
		}
	}
}
