// Package config loads motorctl's settings: defaults, then the YAML file, then
// environment variables. Command-line flags are applied on top by the caller.
package config

import (
	"io/ioutil"
	"os"
	"unicode"

	"github.com/caarlos0/env/v6"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const DefaultPath = "/etc/motorctl.yaml"

const (
	BackendPeriph  = "periph"
	BackendPCA9685 = "pca9685"
	BackendDummy   = "dummy"
)

// ErrInvalid is the cause of every validation failure.
var ErrInvalid = errors.New("invalid config")

type Pins struct {
	Forward  int `yaml:"forward"`
	Backward int `yaml:"backward"`
	PWM      int `yaml:"pwm"`
	// Only used by the pca9685 backend, which drives duty from this channel
	// instead of the PWM pin.
	PCA9685Channel int `yaml:"pca9685_channel"`
}

type PCA9685 struct {
	Device  string `yaml:"device" env:"MOTORCTL_I2C_DEVICE"`
	Address int    `yaml:"address"`
}

type Keys struct {
	Forward  string `yaml:"forward"`
	Backward string `yaml:"backward"`
	Left     string `yaml:"left"`
	Right    string `yaml:"right"`
	Quit     string `yaml:"quit"`
}

type Joystick struct {
	Enabled bool   `yaml:"enabled"`
	Device  string `yaml:"device" env:"JOYSTICK_DEVICE"`
}

type HTTP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" env:"MOTORCTL_HTTP_ADDR"`
}

type MQTT struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker" env:"MOTORCTL_MQTT_BROKER"`
	ClientID string `yaml:"client_id"`
	Prefix   string `yaml:"prefix"`
}

type Frontends struct {
	Keyboard bool     `yaml:"keyboard"`
	Shell    bool     `yaml:"shell"`
	Joystick Joystick `yaml:"joystick"`
	HTTP     HTTP     `yaml:"http"`
	MQTT     MQTT     `yaml:"mqtt"`
}

type Screen struct {
	Enabled bool   `yaml:"enabled"`
	Device  string `yaml:"device"`
}

type Sounds struct {
	Start string `yaml:"start"`
	Stop  string `yaml:"stop"`
}

type Config struct {
	Backend        string  `yaml:"backend" env:"MOTORCTL_BACKEND"`
	LogLevel       string  `yaml:"log_level" env:"MOTORCTL_LOG_LEVEL"`
	Step           float64 `yaml:"step" env:"MOTORCTL_STEP"`
	PWMFrequencyHz int     `yaml:"pwm_frequency_hz"`

	MotorA  Pins    `yaml:"motor_a"`
	MotorB  Pins    `yaml:"motor_b"`
	PCA9685 PCA9685 `yaml:"pca9685"`

	Keys      Keys      `yaml:"keys"`
	Frontends Frontends `yaml:"frontends"`
	Screen    Screen    `yaml:"screen"`
	Sounds    Sounds    `yaml:"sounds"`
}

// Default matches the seeedstudio Raspberry Pi Motor Driver Board v1.0 wiring.
func Default() *Config {
	return &Config{
		Backend:        BackendPeriph,
		LogLevel:       "info",
		Step:           0.05,
		PWMFrequencyHz: 1000,
		MotorA:         Pins{Forward: 23, Backward: 24, PWM: 25, PCA9685Channel: 0},
		MotorB:         Pins{Forward: 17, Backward: 27, PWM: 22, PCA9685Channel: 1},
		PCA9685: PCA9685{
			Device:  "/dev/i2c-1",
			Address: 0x40,
		},
		Keys: Keys{
			Forward:  "w",
			Backward: "s",
			Left:     "a",
			Right:    "d",
			Quit:     "q",
		},
		Frontends: Frontends{
			Keyboard: true,
			Joystick: Joystick{Device: "/dev/input/js0"},
			HTTP:     HTTP{Addr: ":8080"},
			MQTT:     MQTT{Broker: "tcp://localhost:1883", ClientID: "motorctl", Prefix: "motorctl"},
		},
		Screen: Screen{Device: "/dev/fb1"},
	}
}

// Load reads path over the defaults and applies the environment. A missing file
// is only an error if it isn't the default path.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := ioutil.ReadFile(path)
	switch {
	case os.IsNotExist(err) && path == DefaultPath:
	case err != nil:
		return nil, errors.Wrapf(err, "reading config %s", path)
	default:
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "reading environment")
	}
	return cfg, nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPeriph, BackendPCA9685, BackendDummy:
	default:
		return invalid("unknown backend %q", c.Backend)
	}
	if !(c.Step > 0 && c.Step <= 1) {
		return invalid("step must be in (0, 1], got %v", c.Step)
	}
	if c.PWMFrequencyHz <= 0 {
		return invalid("pwm_frequency_hz must be positive, got %d", c.PWMFrequencyHz)
	}

	used := map[int]string{}
	claim := func(pin int, what string) error {
		if pin < 0 || pin > 27 {
			return invalid("%s: GPIO %d out of range 0-27", what, pin)
		}
		if other, ok := used[pin]; ok {
			return invalid("%s: GPIO %d already used by %s", what, pin, other)
		}
		used[pin] = what
		return nil
	}
	for _, m := range []struct {
		name string
		pins Pins
	}{{"motor_a", c.MotorA}, {"motor_b", c.MotorB}} {
		if err := claim(m.pins.Forward, m.name+".forward"); err != nil {
			return err
		}
		if err := claim(m.pins.Backward, m.name+".backward"); err != nil {
			return err
		}
		if c.Backend == BackendPCA9685 {
			if m.pins.PCA9685Channel < 0 || m.pins.PCA9685Channel > 15 {
				return invalid("%s.pca9685_channel %d out of range 0-15", m.name, m.pins.PCA9685Channel)
			}
			continue
		}
		if err := claim(m.pins.PWM, m.name+".pwm"); err != nil {
			return err
		}
	}
	if c.Backend == BackendPCA9685 && c.MotorA.PCA9685Channel == c.MotorB.PCA9685Channel {
		return invalid("motors share PCA9685 channel %d", c.MotorA.PCA9685Channel)
	}

	keys := map[string]string{}
	for name, k := range c.KeyMap() {
		if len([]rune(k)) != 1 {
			return invalid("keys.%s must be a single character, got %q", name, k)
		}
		if other, ok := keys[k]; ok {
			return invalid("keys.%s and keys.%s are both %q", name, other, k)
		}
		keys[k] = name
	}

	f := c.Frontends
	if f.Keyboard && f.Shell {
		return invalid("keyboard and shell frontends both read the terminal; enable only one")
	}
	if !f.Keyboard && !f.Shell && !f.Joystick.Enabled && !f.HTTP.Enabled && !f.MQTT.Enabled {
		return invalid("no frontends enabled")
	}
	return nil
}

// KeyMap returns the key bindings by command name, lower-cased keys.
func (c *Config) KeyMap() map[string]string {
	lower := func(s string) string {
		r := []rune(s)
		if len(r) == 1 {
			return string(unicode.ToLower(r[0]))
		}
		return s
	}
	return map[string]string{
		"forward":  lower(c.Keys.Forward),
		"backward": lower(c.Keys.Backward),
		"left":     lower(c.Keys.Left),
		"right":    lower(c.Keys.Right),
		"quit":     lower(c.Keys.Quit),
	}
}
