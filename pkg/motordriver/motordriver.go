// Package motordriver models the two-channel motor driver board: a left and a
// right motor, each driven from a running speed total that commands nudge up
// and down.
package motordriver

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motor"
)

type MotorDriver struct {
	left  *motor.Motor
	right *motor.Motor

	// Unbounded; only the motors clamp what they apply.
	speedLeft  float64
	speedRight float64

	log *log.Entry
}

func New(left, right *motor.Motor) *MotorDriver {
	return &MotorDriver{
		left:  left,
		right: right,
		log:   log.WithField("component", "motordriver"),
	}
}

// AdjustSpeed adds the deltas to the running totals and applies the new totals
// to the motors.
func (d *MotorDriver) AdjustSpeed(deltaLeft, deltaRight float64) error {
	if !finite(deltaLeft) || !finite(deltaRight) {
		return errors.Errorf("invalid speed delta (%v, %v)", deltaLeft, deltaRight)
	}
	left, right := d.speedLeft+deltaLeft, d.speedRight+deltaRight
	d.log.WithFields(log.Fields{
		"left":  left,
		"right": right,
	}).Debug("Applying speeds")

	// Each total only moves once its motor has taken it.
	if err := d.left.SetSpeed(left); err != nil {
		return err
	}
	d.speedLeft = left
	if err := d.right.SetSpeed(right); err != nil {
		return err
	}
	d.speedRight = right
	return nil
}

// Apply adjusts the speeds by the deltas of a movement command.
func (d *MotorDriver) Apply(cmd drive.Command, step float64) error {
	if !cmd.Moves() {
		return errors.Errorf("%v is not a movement command", cmd)
	}
	return d.AdjustSpeed(cmd.Deltas(step))
}

func (d *MotorDriver) Speeds() (left, right float64) {
	return d.speedLeft, d.speedRight
}

func (d *MotorDriver) States() (left, right motor.State) {
	return d.left.State(), d.right.State()
}

// Close releases both motors. The right motor is released even if the left
// one fails.
func (d *MotorDriver) Close() error {
	errL := d.left.Close()
	errR := d.right.Close()
	if errL != nil {
		return errL
	}
	return errR
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
