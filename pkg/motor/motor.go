// Package motor drives a single DC motor behind one channel of an H-bridge: two
// direction-enable lines and a PWM line setting the power.
package motor

import (
	"math"

	"github.com/pkg/errors"
)

// ErrClosed is returned when a motor is used after its lines have been released.
var ErrClosed = errors.New("motor closed")

// DigitalLine is an on/off output, e.g. one of the H-bridge direction inputs.
type DigitalLine interface {
	On() error
	Off() error
	Close() error
}

// PWMLine is a duty-cycle output. Duty is in [0, 1].
type PWMLine interface {
	SetDuty(duty float64) error
	Close() error
}

// State is the last state applied to the motor's lines.
type State struct {
	Forward  bool    `json:"forward"`
	Backward bool    `json:"backward"`
	Duty     float64 `json:"duty"`
}

type Motor struct {
	name     string
	forward  DigitalLine
	backward DigitalLine
	pwm      PWMLine

	state  State
	closed bool
}

func New(name string, forward, backward DigitalLine, pwm PWMLine) *Motor {
	return &Motor{
		name:     name,
		forward:  forward,
		backward: backward,
		pwm:      pwm,
	}
}

func (m *Motor) Name() string {
	return m.name
}

// Clamp converts a signed speed into a duty magnitude. Anything at or beyond
// full speed in either direction is 1.
func Clamp(speed float64) float64 {
	if math.IsNaN(speed) {
		return 0
	}
	if speed >= 1 || speed <= -1 {
		return 1
	}
	return math.Abs(speed)
}

// SetSpeed selects the direction from the sign of speed and sets the duty to
// Clamp(speed). Zero counts as backward, with zero duty.
func (m *Motor) SetSpeed(speed float64) error {
	if m.closed {
		return ErrClosed
	}
	if err := m.setDirection(speed > 0); err != nil {
		return err
	}
	duty := Clamp(speed)
	if err := m.pwm.SetDuty(duty); err != nil {
		return errors.Wrapf(err, "motor %s: setting duty %.3f", m.name, duty)
	}
	m.state.Duty = duty
	return nil
}

// setDirection always switches the active line off before the other one on, so
// both enables are never high together.
func (m *Motor) setDirection(forward bool) error {
	on, off := m.backward, m.forward
	if forward {
		on, off = m.forward, m.backward
	}
	if err := off.Off(); err != nil {
		return errors.Wrapf(err, "motor %s: disabling direction line", m.name)
	}
	m.state.Forward, m.state.Backward = false, false
	if err := on.On(); err != nil {
		return errors.Wrapf(err, "motor %s: enabling direction line", m.name)
	}
	m.state.Forward, m.state.Backward = forward, !forward
	return nil
}

func (m *Motor) State() State {
	return m.state
}

// Close releases the three lines. Only the first call does anything.
func (m *Motor) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for _, c := range []interface{ Close() error }{m.forward, m.backward, m.pwm} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "motor %s: releasing line", m.name)
		}
	}
	m.state = State{}
	return firstErr
}
