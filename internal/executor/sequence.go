package executor

import "time"

// Timing holds the fixed step parameters of the timed sequences.
type Timing struct {
	// BlinkOn and BlinkOff are the two halves of one blink cycle.
	BlinkOn  time.Duration
	BlinkOff time.Duration

	// FadeStep is the intensity change per PULSE step.
	FadeStep uint8

	// FadeStepDelay is the hold time of each PULSE step.
	FadeStepDelay time.Duration
}

// DefaultTiming returns the device timing: 100ms + 100ms blink cycles and
// a 5-level fade step held for 10ms.
func DefaultTiming() Timing {
	return Timing{
		BlinkOn:       100 * time.Millisecond,
		BlinkOff:      100 * time.Millisecond,
		FadeStep:      5,
		FadeStepDelay: 10 * time.Millisecond,
	}
}

// cycle returns one full blink cycle.
func (t Timing) cycle() time.Duration {
	return t.BlinkOn + t.BlinkOff
}

// step is one actuator level held for a time.
type step struct {
	level uint8
	hold  time.Duration
}

// sequence yields the steps of a timed action. next returns false once
// the sequence is complete.
type sequence interface {
	next() (step, bool)
}

// blinkCount returns max(1, floor(duration / cycle)).
func blinkCount(duration, cycle time.Duration) int {
	if cycle <= 0 {
		return 1
	}
	count := int(duration / cycle)
	if count < 1 {
		return 1
	}
	return count
}

// blinkSequence alternates on and off for a fixed number of cycles.
type blinkSequence struct {
	timing Timing
	cycles int

	emitted int // half-cycles emitted so far
}

func newBlinkSequence(duration time.Duration, timing Timing) *blinkSequence {
	return &blinkSequence{
		timing: timing,
		cycles: blinkCount(duration, timing.cycle()),
	}
}

func (s *blinkSequence) next() (step, bool) {
	if s.emitted >= 2*s.cycles {
		return step{}, false
	}
	on := s.emitted%2 == 0
	s.emitted++
	if on {
		return step{level: 255, hold: s.timing.BlinkOn}, true
	}
	return step{level: 0, hold: s.timing.BlinkOff}, true
}

// pulseSequence ramps 0 -> 255 -> 0 repeatedly until the deadline.
// The deadline is checked before every step, so a ramp may stop mid-way.
type pulseSequence struct {
	clock    Clock
	deadline time.Time
	stepSize int
	delay    time.Duration

	level  int
	rising bool
	passes int // completed 0 -> 255 -> 0 ramps
}

func newPulseSequence(clock Clock, start time.Time, duration time.Duration, timing Timing) *pulseSequence {
	stepSize := int(timing.FadeStep)
	if stepSize < 1 {
		stepSize = 1
	}
	return &pulseSequence{
		clock:    clock,
		deadline: start.Add(duration),
		stepSize: stepSize,
		delay:    timing.FadeStepDelay,
		rising:   true,
	}
}

func (s *pulseSequence) next() (step, bool) {
	if !s.clock.Now().Before(s.deadline) {
		return step{}, false
	}

	current := step{level: uint8(s.level), hold: s.delay}

	if s.rising {
		s.level += s.stepSize
		if s.level >= 255 {
			s.level = 255
			s.rising = false
		}
	} else {
		s.level -= s.stepSize
		if s.level <= 0 {
			s.level = 0
			s.rising = true
			s.passes++
		}
	}

	return current, true
}
