package main

import (
	"testing"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/config"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/controller"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motordriver"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestOverridesApply(t *testing.T) {
	cfg := config.Default()
	step := 0.1
	overrides{
		backend:  strPtr("dummy"),
		step:     &step,
		logLevel: strPtr("debug"),
		http:     strPtr(":9090"),
		mqtt:     strPtr("tcp://broker:1883"),
		joystick: strPtr("/dev/input/js1"),
		screen:   boolPtr(true),
	}.apply(cfg)

	if cfg.Backend != "dummy" || cfg.Step != 0.1 || cfg.LogLevel != "debug" {
		t.Fatalf("scalar overrides not applied: %+v", cfg)
	}
	if !cfg.Frontends.HTTP.Enabled || cfg.Frontends.HTTP.Addr != ":9090" {
		t.Errorf("http override not applied: %+v", cfg.Frontends.HTTP)
	}
	if !cfg.Frontends.MQTT.Enabled || cfg.Frontends.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt override not applied: %+v", cfg.Frontends.MQTT)
	}
	if !cfg.Frontends.Joystick.Enabled || cfg.Frontends.Joystick.Device != "/dev/input/js1" {
		t.Errorf("joystick override not applied: %+v", cfg.Frontends.Joystick)
	}
	if !cfg.Screen.Enabled {
		t.Error("screen override not applied")
	}
	if !cfg.Frontends.Keyboard {
		t.Error("keyboard should stay enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("overridden config should be valid: %v", err)
	}
}

func TestShellFlagDisablesKeyboard(t *testing.T) {
	cfg := config.Default()
	overrides{shell: boolPtr(true)}.apply(cfg)
	if cfg.Frontends.Keyboard || !cfg.Frontends.Shell {
		t.Fatalf("expected shell only, got %+v", cfg.Frontends)
	}

	cfg = config.Default()
	overrides{shell: boolPtr(true), keyboard: boolPtr(true)}.apply(cfg)
	if err := cfg.Validate(); err == nil {
		t.Fatal("asking for both keyboard and shell should not validate")
	}
}

func TestBindingsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.Forward = "I"
	b, err := bindingsFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for key, want := range map[rune]drive.Command{
		'i': drive.Forward,
		'I': drive.Forward,
		's': drive.Backward,
		'a': drive.Left,
		'd': drive.Right,
		'q': drive.Quit,
	} {
		got, ok := b.Lookup(key)
		if !ok || got != want {
			t.Errorf("key %q: got %v (%v), want %v", key, got, ok, want)
		}
	}
	if _, ok := b.Lookup('w'); ok {
		t.Error("w should no longer be bound")
	}
}

func TestBuildFrontends(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendDummy
	cfg.Frontends.HTTP.Enabled = true
	cfg.Frontends.MQTT.Enabled = true
	cfg.Frontends.Joystick.Enabled = true

	hw := hardware.NewDummy()
	a, b, err := hw.OpenMotors(cfg.MotorA, cfg.MotorB)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := controller.New(motordriver.New(a, b), cfg.Step)

	frontends, err := buildFrontends(cfg, ctrl)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range frontends {
		names = append(names, f.Name())
	}
	want := []string{"keyboard", "joystick", "http", "mqtt"}
	if len(names) != len(want) {
		t.Fatalf("got frontends %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("frontend %d: got %q, want %q", i, names[i], want[i])
		}
	}
}

func TestBindingsFromConfigNonASCII(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.Forward = "Ü"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	b, err := bindingsFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []rune{'ü', 'Ü'} {
		if cmd, ok := b.Lookup(key); !ok || cmd != drive.Forward {
			t.Errorf("key %q: got %v (%v), want forward", key, cmd, ok)
		}
	}
}
