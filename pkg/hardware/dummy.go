package hardware

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/config"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motor"
)

// Dummy is an in-memory board for tests and for running without hardware.
type Dummy struct {
	lock  sync.Mutex
	lines map[string]*DummyLine
}

func NewDummy() *Dummy {
	return &Dummy{lines: map[string]*DummyLine{}}
}

var _ Interface = (*Dummy)(nil)

func (d *Dummy) line(name string) (*DummyLine, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if l, ok := d.lines[name]; ok && !l.Closed() {
		return nil, errors.Errorf("%s already in use", name)
	}
	l := &DummyLine{name: name}
	d.lines[name] = l
	return l, nil
}

func (d *Dummy) digital(n int) (motor.DigitalLine, error) {
	return d.line(fmt.Sprintf("GPIO%d", n))
}

func (d *Dummy) pwm(pins config.Pins) (motor.PWMLine, error) {
	return d.line(fmt.Sprintf("GPIO%d", pins.PWM))
}

func (d *Dummy) OpenMotors(a, b config.Pins) (*motor.Motor, *motor.Motor, error) {
	return openMotors(d, a, b)
}

// Line returns the most recently opened line with the given name, e.g. "GPIO23".
func (d *Dummy) Line(name string) *DummyLine {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.lines[name]
}

func (d *Dummy) Shutdown() error {
	log.Debug("DHW: Shutdown")
	return nil
}

type DummyLine struct {
	name string

	lock   sync.Mutex
	on     bool
	duty   float64
	closed bool
}

func (l *DummyLine) On() error {
	return l.set(true, 0, "on")
}

func (l *DummyLine) Off() error {
	return l.set(false, 0, "off")
}

func (l *DummyLine) SetDuty(duty float64) error {
	return l.set(duty > 0, duty, "duty")
}

func (l *DummyLine) set(on bool, duty float64, what string) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return errors.Errorf("%s is closed", l.name)
	}
	l.on, l.duty = on, duty
	log.Debugf("DHW: %s %s %.3f", l.name, what, duty)
	return nil
}

func (l *DummyLine) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return errors.Errorf("%s closed twice", l.name)
	}
	l.closed = true
	l.on, l.duty = false, 0
	log.Debugf("DHW: %s closed", l.name)
	return nil
}

func (l *DummyLine) IsOn() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.on
}

func (l *DummyLine) Duty() float64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.duty
}

func (l *DummyLine) Closed() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.closed
}
