package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tigerbot-team/tigerbot/motorctl/pkg/config"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/controller"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/drive"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/keyboard"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/motordriver"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/mqttctl"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/screen"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/shell"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/sound"
	"github.com/tigerbot-team/tigerbot/motorctl/pkg/webui"
)

type frontend interface {
	Name() string
	Run(ctx context.Context, sender drive.Sender) error
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	app := &cli.App{
		Name:  "motorctl",
		Usage: "drive a two-motor chassis on a Raspberry Pi motor driver board",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "YAML config file",
				EnvVars: []string{"MOTORCTL_CONFIG"},
			},
			&cli.StringFlag{Name: "backend", Usage: "hardware backend: periph, pca9685 or dummy"},
			&cli.Float64Flag{Name: "step", Usage: "speed change per key press"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: "keyboard", Usage: "drive from single key presses on the terminal"},
			&cli.BoolFlag{Name: "shell", Usage: "use the line-based console instead of raw keys"},
			&cli.StringFlag{Name: "joystick", Usage: "drive from this joystick device's D-pad"},
			&cli.StringFlag{Name: "http", Usage: "serve the web keypad on this address"},
			&cli.StringFlag{Name: "mqtt", Usage: "take commands from this MQTT broker"},
			&cli.BoolFlag{Name: "screen", Usage: "show the speeds on the framebuffer display"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			flagOverrides(c).apply(cfg)
			return run(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("motorctl failed")
		os.Exit(1)
	}
}

type overrides struct {
	backend  *string
	step     *float64
	logLevel *string
	keyboard *bool
	shell    *bool
	joystick *string
	http     *string
	mqtt     *string
	screen   *bool
}

func flagOverrides(c *cli.Context) overrides {
	var o overrides
	str := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}
	boolean := func(name string) *bool {
		if !c.IsSet(name) {
			return nil
		}
		v := c.Bool(name)
		return &v
	}
	o.backend = str("backend")
	o.logLevel = str("log-level")
	o.joystick = str("joystick")
	o.http = str("http")
	o.mqtt = str("mqtt")
	o.keyboard = boolean("keyboard")
	o.shell = boolean("shell")
	o.screen = boolean("screen")
	if c.IsSet("step") {
		v := c.Float64("step")
		o.step = &v
	}
	return o
}

func (o overrides) apply(cfg *config.Config) {
	if o.backend != nil {
		cfg.Backend = *o.backend
	}
	if o.step != nil {
		cfg.Step = *o.step
	}
	if o.logLevel != nil {
		cfg.LogLevel = *o.logLevel
	}
	if o.keyboard != nil {
		cfg.Frontends.Keyboard = *o.keyboard
	}
	if o.shell != nil {
		cfg.Frontends.Shell = *o.shell
		// Both want the terminal; asking for the shell means no raw keys.
		if *o.shell && o.keyboard == nil {
			cfg.Frontends.Keyboard = false
		}
	}
	if o.joystick != nil {
		cfg.Frontends.Joystick.Enabled = true
		cfg.Frontends.Joystick.Device = *o.joystick
	}
	if o.http != nil {
		cfg.Frontends.HTTP.Enabled = true
		cfg.Frontends.HTTP.Addr = *o.http
	}
	if o.mqtt != nil {
		cfg.Frontends.MQTT.Enabled = true
		cfg.Frontends.MQTT.Broker = *o.mqtt
	}
	if o.screen != nil {
		cfg.Screen.Enabled = *o.screen
	}
}

func run(cfg *config.Config) (err error) {
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(level)
	log.WithField("backend", cfg.Backend).Info("---- motorctl ----")

	// Opening the speaker is slow; let it happen while the hardware comes up.
	player := sound.NewPlayer()
	defer player.Close()

	hw, err := hardware.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if serr := hw.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()
	motorA, motorB, err := hw.OpenMotors(cfg.MotorA, cfg.MotorB)
	if err != nil {
		return err
	}
	// From here the controller owns the motors and releases them when it stops.
	ctrl := controller.New(motordriver.New(motorA, motorB), cfg.Step)

	frontends, err := buildFrontends(cfg, ctrl)
	if err != nil {
		_ = motorA.Close()
		_ = motorB.Close()
		return err
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hook Ctrl-C etc.
	registerSignalHandlers(cancel)

	player.Play(cfg.Sounds.Start)

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Screen.Enabled {
		scr := screen.New(cfg.Screen.Device, ctrl)
		g.Go(func() error {
			scr.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return ctrl.Run(ctx)
	})

	remaining := int32(len(frontends))
	for _, f := range frontends {
		f := f
		g.Go(func() error {
			flog := log.WithField("frontend", f.Name())
			flog.Info("Starting frontend")
			if err := f.Run(ctx, ctrl); err != nil {
				flog.WithError(err).Warn("Frontend failed")
			} else {
				flog.Info("Frontend stopped")
			}
			if atomic.AddInt32(&remaining, -1) == 0 {
				log.Info("No frontends left, shutting down")
				cancel()
			}
			return nil
		})
	}

	err = g.Wait()
	player.PlayAndWait(cfg.Sounds.Stop)
	return err
}

func buildFrontends(cfg *config.Config, ctrl *controller.Controller) ([]frontend, error) {
	var frontends []frontend
	f := cfg.Frontends
	if f.Keyboard {
		bindings, err := bindingsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		frontends = append(frontends, keyboard.New(os.Stdin, bindings))
	}
	if f.Shell {
		frontends = append(frontends, shell.New(ctrl))
	}
	if f.Joystick.Enabled {
		frontends = append(frontends, joystick.NewFrontend(f.Joystick.Device))
	}
	if f.HTTP.Enabled {
		frontends = append(frontends, webui.New(f.HTTP.Addr, ctrl))
	}
	if f.MQTT.Enabled {
		frontends = append(frontends, mqttctl.New(f.MQTT.Broker, f.MQTT.ClientID, f.MQTT.Prefix, ctrl))
	}
	return frontends, nil
}

func bindingsFromConfig(cfg *config.Config) (drive.Bindings, error) {
	keys := map[drive.Command]string{}
	for name, key := range cfg.KeyMap() {
		cmd, err := drive.Parse(name)
		if err != nil {
			return nil, err
		}
		keys[cmd] = key
	}
	return drive.NewBindings(keys)
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.WithField("signal", s).Info("Signal received, shutting down")
		cancelFunc()
		s = <-signals
		log.WithField("signal", s).Warn("Second signal, exiting now")
		os.Exit(1)
	}()
}
