package joystick

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
)

// Button and pad mappings (DualShock 4 over the Linux js driver):
//
// Axes
//
//    D-pad   u/d = 7 (up = -32767; down = +32767)
//            l/r = 6 (left = -32767; right = +32767)
//    L stick u/d = 1 (up = -32767; down = +32767)
//            l/r = 0 (left = -32767; right = +32767)

type EventType uint8

const (
	EventTypeButton = 1
	EventTypeAxis   = 2

	// Set on the synthetic events the driver sends on open to report the
	// initial state of every control.
	eventTypeInit = 0x80
)

const (
	ButtonSquare   = 3
	ButtonCross    = 0
	ButtonCircle   = 1
	ButtonTriangle = 2
	ButtonOptions  = 9
	ButtonPS       = 10

	AxisLStickX = 0
	AxisLStickY = 1
	AxisDPadX   = 6
	AxisDPadY   = 7
)

func (e EventType) String() string {
	switch e {
	case EventTypeAxis:
		return "axis"
	case EventTypeButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

type Joystick struct {
	device io.ReadCloser

	deviceEpoch    uint32
	wallclockEpoch time.Time
}

type rawEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

type Event struct {
	Time   time.Time
	Value  int16
	Type   EventType
	Number uint8
	Init   bool
}

func (e *Event) String() string {
	return fmt.Sprintf("%v(%v)=%v", e.Type, e.Number, e.Value)
}

// Command maps a D-pad press to a movement and the PS button to quit. Releases,
// stick movement and the initial state events map to nothing.
func (e *Event) Command() (drive.Command, bool) {
	if e.Init || e.Value == 0 {
		return drive.None, false
	}
	switch e.Type {
	case EventTypeAxis:
		switch e.Number {
		case AxisDPadY:
			if e.Value < 0 {
				return drive.Forward, true
			}
			return drive.Backward, true
		case AxisDPadX:
			if e.Value < 0 {
				return drive.Left, true
			}
			return drive.Right, true
		}
	case EventTypeButton:
		if e.Number == ButtonPS {
			return drive.Quit, true
		}
	}
	return drive.None, false
}

func NewJoystick(device string) (*Joystick, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	return newJoystick(f), nil
}

func newJoystick(r io.ReadCloser) *Joystick {
	return &Joystick{
		device: r,
	}
}

func (j *Joystick) ReadEvent() (*Event, error) {
	var rawEvent rawEvent
	err := binary.Read(j.device, binary.LittleEndian, &rawEvent)
	if err != nil {
		return nil, err
	}

	if j.deviceEpoch == 0 {
		j.deviceEpoch = rawEvent.Time
		j.wallclockEpoch = time.Now()
	}

	return &Event{
		Time:   j.wallclockEpoch.Add(time.Duration(rawEvent.Time-j.deviceEpoch) * time.Millisecond),
		Value:  rawEvent.Value,
		Type:   EventType(rawEvent.Type &^ eventTypeInit),
		Number: rawEvent.Number,
		Init:   rawEvent.Type&eventTypeInit != 0,
	}, nil
}

func (j *Joystick) Close() error {
	return j.device.Close()
}
