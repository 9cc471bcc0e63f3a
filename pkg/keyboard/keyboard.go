// Package keyboard reads single key presses from a terminal and turns them into
// drive commands.
package keyboard

import (
	"bytes"
	"context"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
)

const (
	ctrlC = 0x03
	ctrlD = 0x04
)

type fdReader interface {
	io.Reader
	Fd() uintptr
}

type Keyboard struct {
	in       io.Reader
	bindings drive.Bindings
	log      *log.Entry
}

func New(in io.Reader, bindings drive.Bindings) *Keyboard {
	return &Keyboard{
		in:       in,
		bindings: bindings,
		log:      log.WithField("component", "keyboard"),
	}
}

func (k *Keyboard) Name() string {
	return "keyboard"
}

// Run sends a command for every bound key until the quit key, Ctrl-C, Ctrl-D,
// end of input or ctx is done. A terminal input is switched to raw mode for
// the duration.
func (k *Keyboard) Run(ctx context.Context, sender drive.Sender) error {
	if f, ok := k.in.(fdReader); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return errors.Wrap(err, "putting terminal in raw mode")
		}
		defer term.Restore(fd, oldState)

		// Raw mode drops the CR from newlines, so put it back for log output.
		logger := log.StandardLogger()
		out := logger.Out
		logger.SetOutput(&crlfWriter{w: out})
		defer logger.SetOutput(out)
	}

	keys := make(chan rune)
	readErr := make(chan error, 1)
	go func() {
		readErr <- k.readKeys(ctx, keys)
	}()

	k.log.Info("Reading keys")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err == io.EOF {
				k.log.Info("End of input")
				return nil
			}
			return errors.Wrap(err, "reading keys")
		case key := <-keys:
			cmd, ok := k.lookup(key)
			if !ok {
				k.log.WithField("key", string(key)).Debug("Ignoring unbound key")
				continue
			}
			if err := sender.Send(ctx, cmd); err != nil {
				k.log.WithError(err).WithField("command", cmd).Warn("Command failed")
				if ctx.Err() != nil {
					return nil
				}
			}
			if cmd == drive.Quit {
				return nil
			}
		}
	}
}

func (k *Keyboard) lookup(key rune) (drive.Command, bool) {
	if key == ctrlC || key == ctrlD {
		return drive.Quit, true
	}
	return k.bindings.Lookup(key)
}

func (k *Keyboard) readKeys(ctx context.Context, keys chan<- rune) error {
	var buf [64]byte
	var pending []byte
	for {
		n, err := k.in.Read(buf[:])
		pending = append(pending, buf[:n]...)
		for len(pending) > 0 && utf8.FullRune(pending) {
			r, size := utf8.DecodeRune(pending)
			pending = pending[size:]
			select {
			case keys <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
