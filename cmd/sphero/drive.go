package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli"

	"github.com/chaz8081/gosphero/internal/ble"
	"github.com/chaz8081/gosphero/internal/config"
	"github.com/chaz8081/gosphero/internal/drive"
	"github.com/chaz8081/gosphero/internal/hotkey"
)

func driveKeys(c *cli.Context) error {
	return withRobot(c, func(ctx context.Context, robot *ble.Robot) error {
		keys := env.cfg.Drive.Keys
		bindings := drive.Bindings{
			Forward:  keys.Forward,
			Backward: keys.Backward,
			Left:     keys.Left,
			Right:    keys.Right,
			Stop:     keys.Stop,
		}
		ctrl := drive.NewController(robot, drive.Options{
			MaxSpeed: env.cfg.Drive.Speed,
			Rate:     env.cfg.Drive.Rate,
			Burst:    env.cfg.Drive.Burst,
			Logger:   env.log,
		})

		listener := hotkey.NewListener(keys.All())
		go listener.Start()
		defer listener.Stop()

		printBanner(env.cfg)

		var held drive.Keys
		events := listener.Events()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return ctrl.Stop()
				}
				var stop bool
				held, stop = bindings.Apply(held, ev.Key, ev.Down)
				var err error
				if stop {
					err = ctrl.Stop()
				} else {
					err = ctrl.MoveKeys(held)
				}
				if err != nil {
					env.log.Warn("[drive] command failed", "error", err)
				}

			case <-robot.Done():
				fmt.Println("Robot disconnected.")
				return nil

			case <-ctx.Done():
				if err := ctrl.Stop(); err != nil {
					env.log.Warn("[drive] stop failed", "error", err)
				}
				return ctx.Err()
			}
		}
	})
}

// printBanner displays the drive configuration summary.
func printBanner(cfg *config.Config) {
	k := cfg.Drive.Keys
	fmt.Println("=== sphero drive ===")
	fmt.Printf("  Keys:   %s\n", strings.Join([]string{k.Forward, k.Left, k.Backward, k.Right}, "/"))
	fmt.Printf("  Stop:   %s\n", k.Stop)
	fmt.Printf("  Speed:  %.0f%% at full stick\n", cfg.Drive.Speed*100)
	fmt.Printf("  Rate:   %.0f rolls/s (burst %d)\n", cfg.Drive.Rate, cfg.Drive.Burst)
	fmt.Println("  Ctrl+C to quit")
	fmt.Println("====================")
}
