package hardware

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/config"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motor"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/pca9685"
)

// Periph drives every line straight from the Pi's GPIO header.
type Periph struct {
	freq physic.Frequency
	log  *log.Entry
}

func NewPeriph(pwmFreqHz int) (*Periph, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initialising periph host drivers")
	}
	return &Periph{
		freq: physic.Frequency(pwmFreqHz) * physic.Hertz,
		log:  log.WithField("component", "periph"),
	}, nil
}

var _ Interface = (*Periph)(nil)

func (p *Periph) lookup(n int) (gpio.PinIO, error) {
	name := fmt.Sprintf("GPIO%d", n)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no such pin %s", name)
	}
	// Lines start low, i.e. off and zero duty.
	if err := pin.Out(gpio.Low); err != nil {
		return nil, errors.Wrapf(err, "configuring %s as output", name)
	}
	return pin, nil
}

func (p *Periph) digital(n int) (motor.DigitalLine, error) {
	pin, err := p.lookup(n)
	if err != nil {
		return nil, err
	}
	p.log.WithField("pin", pin.Name()).Debug("Opened digital output")
	return &periphOutput{pin: pin}, nil
}

func (p *Periph) pwm(pins config.Pins) (motor.PWMLine, error) {
	pin, err := p.lookup(pins.PWM)
	if err != nil {
		return nil, err
	}
	p.log.WithFields(log.Fields{"pin": pin.Name(), "freq": p.freq}).Debug("Opened PWM output")
	return &periphPWM{pin: pin, freq: p.freq}, nil
}

func (p *Periph) OpenMotors(a, b config.Pins) (*motor.Motor, *motor.Motor, error) {
	return openMotors(p, a, b)
}

func (p *Periph) Shutdown() error {
	return nil
}

type periphOutput struct {
	pin gpio.PinIO
}

func (o *periphOutput) On() error {
	return o.pin.Out(gpio.High)
}

func (o *periphOutput) Off() error {
	return o.pin.Out(gpio.Low)
}

func (o *periphOutput) Close() error {
	if err := o.pin.Out(gpio.Low); err != nil {
		return err
	}
	return o.pin.Halt()
}

type periphPWM struct {
	pin  gpio.PinIO
	freq physic.Frequency
}

func (o *periphPWM) SetDuty(duty float64) error {
	if duty <= 0 {
		return o.pin.Out(gpio.Low)
	}
	if duty >= 1 {
		return o.pin.Out(gpio.High)
	}
	return o.pin.PWM(gpio.Duty(duty*float64(gpio.DutyMax)), o.freq)
}

func (o *periphPWM) Close() error {
	if err := o.pin.Halt(); err != nil {
		return err
	}
	return o.pin.Out(gpio.Low)
}

// PCA9685Backend keeps the direction lines on the GPIO header but takes the
// duty from a PCA9685 channel, for boards that route PWM through the chip.
type PCA9685Backend struct {
	*Periph
	chip *pca9685.PCA9685
}

func NewPCA9685(pwmFreqHz int, device string, addr int) (*PCA9685Backend, error) {
	p, err := NewPeriph(pwmFreqHz)
	if err != nil {
		return nil, err
	}
	chip, err := pca9685.New(device, addr)
	if err != nil {
		return nil, err
	}
	if err := chip.Configure(pwmFreqHz); err != nil {
		_ = chip.Close()
		return nil, errors.Wrap(err, "configuring PCA9685")
	}
	return &PCA9685Backend{Periph: p, chip: chip}, nil
}

var _ Interface = (*PCA9685Backend)(nil)

func (b *PCA9685Backend) pwm(pins config.Pins) (motor.PWMLine, error) {
	ch := b.chip.Channel(pins.PCA9685Channel)
	if err := ch.SetDuty(0); err != nil {
		return nil, errors.Wrapf(err, "zeroing PCA9685 channel %d", pins.PCA9685Channel)
	}
	return ch, nil
}

func (b *PCA9685Backend) OpenMotors(a, c config.Pins) (*motor.Motor, *motor.Motor, error) {
	return openMotors(b, a, c)
}

func (b *PCA9685Backend) Shutdown() error {
	return b.chip.Close()
}
