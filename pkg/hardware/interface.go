package hardware

import (
	"github.com/pkg/errors"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/config"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motor"
)

type Interface interface {
	// OpenMotors claims the lines for the board's two motor channels.
	OpenMotors(a, b config.Pins) (motorA, motorB *motor.Motor, err error)
	// Shutdown releases anything shared between the motors. Motors are closed
	// by their owner first.
	Shutdown() error
}

// New returns the backend selected in the config.
func New(cfg *config.Config) (Interface, error) {
	switch cfg.Backend {
	case config.BackendPeriph:
		return NewPeriph(cfg.PWMFrequencyHz)
	case config.BackendPCA9685:
		return NewPCA9685(cfg.PWMFrequencyHz, cfg.PCA9685.Device, cfg.PCA9685.Address)
	case config.BackendDummy:
		return NewDummy(), nil
	}
	return nil, errors.Errorf("unknown hardware backend %q", cfg.Backend)
}

type lineOpener interface {
	digital(pin int) (motor.DigitalLine, error)
	pwm(pins config.Pins) (motor.PWMLine, error)
}

type closer interface {
	Close() error
}

func openMotor(o lineOpener, name string, pins config.Pins) (m *motor.Motor, err error) {
	var opened []closer
	defer func() {
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
		}
	}()

	fwd, err := o.digital(pins.Forward)
	if err != nil {
		return nil, errors.Wrapf(err, "motor %s forward", name)
	}
	opened = append(opened, fwd)
	bwd, err := o.digital(pins.Backward)
	if err != nil {
		return nil, errors.Wrapf(err, "motor %s backward", name)
	}
	opened = append(opened, bwd)
	pwm, err := o.pwm(pins)
	if err != nil {
		return nil, errors.Wrapf(err, "motor %s pwm", name)
	}
	return motor.New(name, fwd, bwd, pwm), nil
}

func openMotors(o lineOpener, a, b config.Pins) (*motor.Motor, *motor.Motor, error) {
	ma, err := openMotor(o, "A", a)
	if err != nil {
		return nil, nil, err
	}
	mb, err := openMotor(o, "B", b)
	if err != nil {
		_ = ma.Close()
		return nil, nil, err
	}
	return ma, mb, nil
}
