package main

import (
	"time"

	"github.com/urfave/cli"
)

var (
	flgConfig   = cli.StringFlag{Name: "config, c", Usage: "path to config file (default: ~/.config/gosphero/config.yaml)"}
	flgName     = cli.StringFlag{Name: "name, n", Usage: "connect to the robot advertising this name instead of the nearest"}
	flgTimeout  = cli.DurationFlag{Name: "timeout, t", Usage: "how long to look for a robot (default from config)"}
	flgLogLevel = cli.StringFlag{Name: "log-level", Usage: "override log_level (debug, info, warn, error)"}

	flgDuration = cli.DurationFlag{Name: "duration, d", Value: 5 * time.Second, Usage: "how long to scan"}
	flgJSON     = cli.BoolFlag{Name: "json", Usage: "print results as JSON"}
	flgPersist  = cli.BoolFlag{Name: "persist", Usage: "store the colour as the robot's default"}
	flgSpeed    = cli.IntFlag{Name: "speed, s", Value: 64, Usage: "speed 0-255"}
	flgHeading  = cli.IntFlag{Name: "heading", Usage: "heading in degrees"}
	flgFor      = cli.DurationFlag{Name: "for", Value: time.Second, Usage: "how long to roll before stopping"}
	flgSide     = cli.DurationFlag{Name: "side", Value: time.Second, Usage: "time spent on each side of the square"}
)
