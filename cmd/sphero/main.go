// Command sphero finds, connects to and drives Sphero robots over BLE.
//
// Usage:
//
//	sphero [--name NAME] [--timeout 10s] <command> [args]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/chaz8081/gosphero/internal/config"
	"github.com/chaz8081/gosphero/internal/logger"
)

// env is set up once in setup and shared by every command.
var env struct {
	cfg      *config.Config
	log      *slog.Logger
	closeLog func() error
}

func main() {
	app := cli.NewApp()

	app.Name = "sphero"
	app.Usage = "Drive Sphero robots over Bluetooth LE"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{flgConfig, flgName, flgTimeout, flgLogLevel}

	app.Commands = []cli.Command{
		{
			Name:    "scan",
			Aliases: []string{"s"},
			Usage:   "List nearby robots, strongest signal first",
			Action:  scan,
			Flags:   []cli.Flag{flgDuration, flgJSON},
		},
		{
			Name:      "color",
			Aliases:   []string{"c"},
			Usage:     "Set the main LED colour",
			ArgsUsage: "RRGGBB",
			Action:    setColor,
			Flags:     []cli.Flag{flgPersist},
		},
		{
			Name:    "roll",
			Aliases: []string{"r"},
			Usage:   "Roll for a while, then stop",
			Action:  roll,
			Flags:   []cli.Flag{flgSpeed, flgHeading, flgFor},
		},
		{
			Name:      "brightness",
			Usage:     "Set the rear aiming LED brightness",
			ArgsUsage: "0-255",
			Action:    brightness,
		},
		{
			Name:      "heading",
			Usage:     "Make the robot's current orientation the given heading",
			ArgsUsage: "DEGREES",
			Action:    heading,
		},
		{
			Name:   "square",
			Usage:  "Roll around a square, changing colour at each corner, until interrupted",
			Action: square,
			Flags:  []cli.Flag{flgSide},
		},
		{
			Name:    "drive",
			Aliases: []string{"d"},
			Usage:   "Drive with the keyboard",
			Action:  driveKeys,
		},
		{
			Name:   "init",
			Usage:  "Write the default config file",
			Action: initConfig,
		},
	}

	app.Before = setup
	app.After = func(*cli.Context) error {
		if env.closeLog != nil {
			return env.closeLog()
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "sphero: %v\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	cfg, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return errors.Wrap(err, "config")
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config validation")
	}

	log, closeLog, err := logger.New(cfg)
	if err != nil {
		return errors.Wrap(err, "logger")
	}
	slog.SetDefault(log)

	env.cfg, env.log, env.closeLog = cfg, log, closeLog
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

func initConfig(c *cli.Context) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

// chkErr turns an interrupt into a clean exit.
func chkErr(err error) error {
	if errors.Is(err, context.Canceled) {
		fmt.Printf("\n(Canceled)\n")
		return nil
	}
	return err
}
