package joystick

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
)

// Frontend waits for the joystick to appear and then drives from its D-pad.
type Frontend struct {
	Device    string
	RetryWait time.Duration

	open func(device string) (*Joystick, error)
	log  *log.Entry
}

func NewFrontend(device string) *Frontend {
	return &Frontend{
		Device:    device,
		RetryWait: time.Second,
		open:      NewJoystick,
		log:       log.WithField("component", "joystick"),
	}
}

func (f *Frontend) Name() string {
	return "joystick"
}

func (f *Frontend) Run(ctx context.Context, sender drive.Sender) error {
	j, err := f.wait(ctx)
	if j == nil {
		return err
	}
	f.log.WithField("device", f.Device).Info("Opened joystick")

	// Closing the device is the only way to interrupt a blocked read.
	go func() {
		<-ctx.Done()
		_ = j.Close()
	}()

	for {
		event, err := j.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "reading joystick")
		}
		f.log.WithField("event", event).Debug("Joy")
		cmd, ok := event.Command()
		if !ok {
			continue
		}
		if err := sender.Send(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.log.WithError(err).WithField("command", cmd).Warn("Command failed")
		}
		if cmd == drive.Quit {
			return nil
		}
	}
}

func (f *Frontend) wait(ctx context.Context) (*Joystick, error) {
	firstLog := true
	for {
		j, err := f.open(f.Device)
		if err == nil {
			return j, nil
		}
		if firstLog {
			f.log.WithError(err).Info("Waiting for joystick")
			firstLog = false
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(f.RetryWait):
		}
	}
}
