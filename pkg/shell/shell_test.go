package shell

import (
	"context"
	"errors"
	"testing"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/controller"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motor"
)

func TestParseRepeat(t *testing.T) {
	expectRepeat(t, nil, 1)
	expectRepeat(t, []string{"3"}, 3)
	expectRepeat(t, []string{"40"}, 40)

	for _, args := range [][]string{{"0"}, {"-2"}, {"41"}, {"lots"}, {"1", "2"}} {
		if n, err := parseRepeat(args); err == nil {
			t.Errorf("parseRepeat(%v) = %d, expected an error", args, n)
		}
	}
}

func expectRepeat(t *testing.T, args []string, expected int) {
	t.Helper()
	n, err := parseRepeat(args)
	if err != nil {
		t.Fatalf("parseRepeat(%v) failed: %v", args, err)
	}
	if n != expected {
		t.Errorf("parseRepeat(%v) = %d, expected %d", args, n, expected)
	}
}

type countingSender struct {
	n    int
	fail int
}

func (c *countingSender) Send(ctx context.Context, cmd drive.Command) error {
	if c.fail > 0 && c.n == c.fail {
		return errors.New("stopped")
	}
	c.n++
	return nil
}

func TestRepeat(t *testing.T) {
	s := New(nil)
	cs := &countingSender{}
	if err := s.repeat(context.Background(), cs, drive.Forward, 5); err != nil {
		t.Fatal(err)
	}
	if cs.n != 5 {
		t.Errorf("sent %d commands, expected 5", cs.n)
	}

	cs = &countingSender{fail: 2}
	if err := s.repeat(context.Background(), cs, drive.Forward, 5); err == nil {
		t.Error("expected the send failure to stop the repeat")
	}
	if cs.n != 2 {
		t.Errorf("sent %d commands before failing, expected 2", cs.n)
	}
}

func TestFormatStatus(t *testing.T) {
	got := formatStatus(controller.Status{
		Left:   0.2,
		Right:  -1.5,
		MotorA: motor.State{Forward: true, Duty: 0.2},
		MotorB: motor.State{Backward: true, Duty: 1},
	})
	expected := "left +0.20 (fwd 20%)  right -1.50 (back 100%)"
	if got != expected {
		t.Errorf("got %q, expected %q", got, expected)
	}
}
