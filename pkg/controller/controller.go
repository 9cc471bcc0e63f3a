// Package controller runs the loop that owns the motor driver. Frontends hand
// it commands; it applies them one at a time and tells listeners about the
// resulting speeds.
package controller

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motor"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motordriver"
)

// ErrStopped is returned by Send once the loop has exited.
var ErrStopped = errors.New("controller stopped")

type Status struct {
	Left     float64     `json:"left"`
	Right    float64     `json:"right"`
	MotorA   motor.State `json:"motor_a"`
	MotorB   motor.State `json:"motor_b"`
	Commands uint64      `json:"commands"`
}

type request struct {
	cmd  drive.Command
	done chan error
}

type Controller struct {
	driver   *motordriver.MotorDriver
	step     float64
	requests chan request
	stopped  chan struct{}

	lock      sync.Mutex
	status    Status
	listeners []func(Status)

	log *log.Entry
}

func New(driver *motordriver.MotorDriver, step float64) *Controller {
	return &Controller{
		driver:   driver,
		step:     step,
		requests: make(chan request),
		stopped:  make(chan struct{}),
		log:      log.WithField("component", "controller"),
	}
}

var _ drive.Sender = (*Controller)(nil)

// OnStatus registers fn to be called from the loop after every change. fn must
// not block.
func (c *Controller) OnStatus(fn func(Status)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.status
}

// Stopped is closed when Run returns.
func (c *Controller) Stopped() <-chan struct{} {
	return c.stopped
}

// Send queues a command and waits until the loop has applied it.
func (c *Controller) Send(ctx context.Context, cmd drive.Command) error {
	req := request{cmd: cmd, done: make(chan error, 1)}
	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// Every accepted request gets a reply.
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies commands until Quit, ctx is cancelled or the hardware fails. The
// driver is closed on the way out.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer close(c.stopped)
	defer func() {
		c.log.Info("Releasing motors")
		if cerr := c.driver.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "releasing motors")
		}
	}()

	c.publish(false)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Context done, stopping")
			return nil
		case req := <-c.requests:
			switch {
			case req.cmd == drive.Quit:
				c.log.Info("Quit requested")
				req.done <- nil
				return nil
			case !req.cmd.Moves():
				req.done <- errors.Errorf("unsupported command %v", req.cmd)
				continue
			}
			if err := c.driver.Apply(req.cmd, c.step); err != nil {
				err = errors.Wrapf(err, "applying %v", req.cmd)
				req.done <- err
				return err
			}
			c.publish(true)
			req.done <- nil
		}
	}
}

func (c *Controller) publish(counted bool) {
	s := Status{}
	s.Left, s.Right = c.driver.Speeds()
	s.MotorA, s.MotorB = c.driver.States()

	c.lock.Lock()
	s.Commands = c.status.Commands
	if counted {
		s.Commands++
	}
	c.status = s
	listeners := make([]func(Status), len(c.listeners))
	copy(listeners, c.listeners)
	c.lock.Unlock()

	c.log.WithFields(log.Fields{
		"left":  s.Left,
		"right": s.Right,
	}).Info("Speeds")
	for _, fn := range listeners {
		fn(s)
	}
}
