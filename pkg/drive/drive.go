// Package drive holds the operator commands shared by every input frontend and
// the speed deltas they map to.
package drive

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

type Command uint8

const (
	None Command = iota
	Forward
	Backward
	Left
	Right
	Quit
)

// DefaultStep is the speed change applied per command.
const DefaultStep = 0.05

var names = map[Command]string{
	None:     "none",
	Forward:  "forward",
	Backward: "backward",
	Left:     "left",
	Right:    "right",
	Quit:     "quit",
}

func (c Command) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// Moves reports whether the command changes the motor speeds.
func (c Command) Moves() bool {
	return c >= Forward && c <= Right
}

// Deltas returns the left and right speed changes for a command.
//
//	forward:  both +step
//	backward: both -step
//	right:    left +step, right -step
//	left:     left -step, right +step
func (c Command) Deltas(step float64) (left, right float64) {
	switch c {
	case Forward:
		return step, step
	case Backward:
		return -step, -step
	case Right:
		return step, -step
	case Left:
		return -step, step
	}
	return 0, 0
}

// Parse accepts a command name ("forward") or the default single-letter key
// ("w"), in any case.
func Parse(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, n := range names {
		if c != None && n == s {
			return c, nil
		}
	}
	if len([]rune(s)) == 1 {
		if c, ok := DefaultBindings().Lookup([]rune(s)[0]); ok {
			return c, nil
		}
	}
	return None, errors.Errorf("unknown command %q", s)
}

// Sender delivers a command to whatever owns the motors.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// Bindings maps keys to commands. Lookups ignore case.
type Bindings map[rune]Command

func DefaultBindings() Bindings {
	return Bindings{
		'w': Forward,
		's': Backward,
		'd': Right,
		'a': Left,
		'q': Quit,
	}
}

// NewBindings builds bindings from single-character key names.
func NewBindings(keys map[Command]string) (Bindings, error) {
	b := Bindings{}
	for cmd, key := range keys {
		r := []rune(key)
		if len(r) != 1 {
			return nil, errors.Errorf("key for %v must be a single character, got %q", cmd, key)
		}
		k := unicode.ToLower(r[0])
		if other, ok := b[k]; ok {
			return nil, errors.Errorf("key %q bound to both %v and %v", key, other, cmd)
		}
		b[k] = cmd
	}
	return b, nil
}

func (b Bindings) Lookup(key rune) (Command, bool) {
	c, ok := b[unicode.ToLower(key)]
	return c, ok
}
