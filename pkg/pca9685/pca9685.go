package pca9685

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"
)

const (
	DefaultAddr = 0x40

	RegMode1 = 0x00
	RegMode2 = 0x01

	// Each PWM output has two 16-bit (low byte first) registers.
	// First register is the on time, second is the off time.
	RegLEDBase = 0x06

	RegPreScale = 0xfe // Pre-scaler for PWM frequency.

	OscillatorHz = 25000000
	PWMMax       = 4095

	// Bit 4 of the high byte of the on/off registers forces the output fully
	// on/off.
	fullBit = 0x10

	NumChannels = 16
)

type port interface {
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type PCA9685 struct {
	dev port
}

func New(deviceFile string, addr int) (*PCA9685, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "opening PCA9685 at %s/%#x", deviceFile, addr)
	}
	return &PCA9685{
		dev: dev,
	}, nil
}

// Prescale returns the pre-scaler value for the given output frequency.
func Prescale(freqHz int) byte {
	p := math.Round(float64(OscillatorHz)/(4096*float64(freqHz))) - 1
	if p < 3 {
		p = 3
	} else if p > 255 {
		p = 255
	}
	return byte(p)
}

func (p *PCA9685) Configure(freqHz int) (err error) {
	// Put device to sleep.
	err = p.dev.WriteReg(RegMode1, []byte{0x11})
	if err != nil {
		return
	}
	// Pre-scaler can only be changed while asleep.
	err = p.dev.WriteReg(RegPreScale, []byte{Prescale(freqHz)})
	if err != nil {
		return
	}
	// Trigger a reset
	err = p.dev.WriteReg(RegMode1, []byte{0x01})
	if err != nil {
		return
	}
	// Required delay after reset.
	time.Sleep(1 * time.Millisecond)
	// Enable.
	err = p.dev.WriteReg(RegMode1, []byte{0x81})
	return
}

// SetPWM sets a channel's duty cycle; value is clamped to [0, 1].
func (p *PCA9685) SetPWM(port int, value float64) error {
	if port < 0 || port >= NumChannels {
		return errors.Errorf("PWM port %d out of range", port)
	}
	addr := RegLEDBase + port*4
	return p.dev.WriteReg(byte(addr), dutyRegisters(value))
}

func dutyRegisters(value float64) []byte {
	switch {
	case !(value > 0):
		return []byte{0, 0, 0, fullBit}
	case value >= 1:
		return []byte{0, fullBit, 0, 0}
	}
	pwmValue := uint16(PWMMax * value)
	return []byte{0, 0, byte(pwmValue & 0xff), byte(pwmValue >> 8)}
}

func (p *PCA9685) Close() error {
	return p.dev.Close()
}

// Channel is one output of the chip, usable as a motor PWM line.
type Channel struct {
	chip *PCA9685
	port int
}

func (p *PCA9685) Channel(port int) *Channel {
	return &Channel{chip: p, port: port}
}

func (c *Channel) SetDuty(duty float64) error {
	return c.chip.SetPWM(c.port, duty)
}

// Close turns the channel fully off. The chip itself is closed separately
// since its channels share it.
func (c *Channel) Close() error {
	return c.chip.SetPWM(c.port, 0)
}
