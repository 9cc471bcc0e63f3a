package hardware

import (
	"testing"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/config"
)

func TestNewSelectsDummy(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendDummy
	hw, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := hw.(*Dummy); !ok {
		t.Fatalf("expected a Dummy backend, got %T", hw)
	}
	cfg.Backend = "bogus"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestDummyMotorsUseConfiguredPins(t *testing.T) {
	cfg := config.Default()
	d := NewDummy()
	a, b, err := d.OpenMotors(cfg.MotorA, cfg.MotorB)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.SetSpeed(0.4); err != nil {
		t.Fatal(err)
	}
	if err := b.SetSpeed(-0.7); err != nil {
		t.Fatal(err)
	}

	expectLine(t, d, "GPIO23", true, 0)
	expectLine(t, d, "GPIO24", false, 0)
	expectLine(t, d, "GPIO25", true, 0.4)
	expectLine(t, d, "GPIO17", false, 0)
	expectLine(t, d, "GPIO27", true, 0)
	expectLine(t, d, "GPIO22", true, 0.7)

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"GPIO23", "GPIO24", "GPIO25", "GPIO17", "GPIO27", "GPIO22"} {
		if !d.Line(name).Closed() {
			t.Errorf("%s was not released", name)
		}
	}
}

func expectLine(t *testing.T, d *Dummy, name string, on bool, duty float64) {
	t.Helper()
	l := d.Line(name)
	if l == nil {
		t.Fatalf("%s was never opened", name)
	}
	if l.IsOn() != on || l.Duty() != duty {
		t.Errorf("%s: on=%v duty=%v, expected on=%v duty=%v", name, l.IsOn(), l.Duty(), on, duty)
	}
}

func TestOpenMotorsReleasesOnFailure(t *testing.T) {
	cfg := config.Default()
	d := NewDummy()
	// Motor B's forward pin clashes with motor A's PWM pin.
	b := cfg.MotorB
	b.Forward = cfg.MotorA.PWM
	if _, _, err := d.OpenMotors(cfg.MotorA, b); err == nil {
		t.Fatal("expected a pin clash")
	}
	for _, name := range []string{"GPIO23", "GPIO24", "GPIO25"} {
		if !d.Line(name).Closed() {
			t.Errorf("%s left claimed after a failed open", name)
		}
	}

	// Everything can be opened again afterwards.
	if _, _, err := d.OpenMotors(cfg.MotorA, cfg.MotorB); err != nil {
		t.Fatal(err)
	}
}
