// Package shell is a line-based operator console, for terminals where raw key
// reading isn't wanted.
package shell

import (
	"context"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/controller"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
)

const maxRepeat = 40

type statusSource interface {
	Status() controller.Status
}

type Shell struct {
	source statusSource
	log    *log.Entry
}

func New(source statusSource) *Shell {
	return &Shell{
		source: source,
		log:    log.WithField("component", "shell"),
	}
}

func (s *Shell) Name() string {
	return "shell"
}

func (s *Shell) Run(ctx context.Context, sender drive.Sender) error {
	sh := ishell.New()
	sh.Println("Motor controller shell. Type help for commands.")
	sh.SetPrompt("motorctl> ")

	for _, c := range []struct {
		cmd   drive.Command
		alias string
	}{
		{drive.Forward, "w"},
		{drive.Backward, "s"},
		{drive.Left, "a"},
		{drive.Right, "d"},
	} {
		cmd := c.cmd
		sh.AddCmd(&ishell.Cmd{
			Name:    cmd.String(),
			Aliases: []string{c.alias},
			Help:    fmt.Sprintf("%s [count]  nudge the speeds %s", cmd, cmd),
			Func: func(c *ishell.Context) {
				n, err := parseRepeat(c.Args)
				if err != nil {
					c.Err(err)
					return
				}
				if err := s.repeat(ctx, sender, cmd, n); err != nil {
					c.Err(err)
					return
				}
				c.Println(formatStatus(s.source.Status()))
			},
		})
	}
	sh.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show the current speeds",
		Func: func(c *ishell.Context) {
			c.Println(formatStatus(s.source.Status()))
		},
	})

	quit := func() {
		if err := sender.Send(ctx, drive.Quit); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("Quit failed")
		}
	}
	// exit is built in; replace it so the motors are released too.
	sh.DeleteCmd("exit")
	sh.AddCmd(&ishell.Cmd{
		Name:    "exit",
		Aliases: []string{"quit"},
		Help:    "release the motors and exit",
		Func: func(c *ishell.Context) {
			quit()
			c.Stop()
		},
	})
	sh.Interrupt(func(c *ishell.Context, count int, input string) {
		quit()
		c.Stop()
	})
	sh.EOF(func(c *ishell.Context) {
		quit()
		c.Stop()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sh.Run()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		sh.Close()
	}
	return nil
}

func (s *Shell) repeat(ctx context.Context, sender drive.Sender, cmd drive.Command, n int) error {
	for i := 0; i < n; i++ {
		if err := sender.Send(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func parseRepeat(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	if len(args) > 1 {
		return 0, errors.New("expected at most one argument")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > maxRepeat {
		return 0, errors.Errorf("count must be a number from 1 to %d", maxRepeat)
	}
	return n, nil
}

func formatStatus(st controller.Status) string {
	dir := func(forward bool) string {
		if forward {
			return "fwd"
		}
		return "back"
	}
	return fmt.Sprintf("left %+.2f (%s %.0f%%)  right %+.2f (%s %.0f%%)",
		st.Left, dir(st.MotorA.Forward), st.MotorA.Duty*100,
		st.Right, dir(st.MotorB.Forward), st.MotorB.Duty*100)
}
