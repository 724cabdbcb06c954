package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/chaz8081/gosphero/internal/ble"
)

const disconnectTimeout = 5 * time.Second

// withSigHandler returns a context cancelled on SIGINT or SIGTERM.
func withSigHandler(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newManager() *ble.Manager {
	return ble.NewManager(ble.NewHostAdapter(), ble.ManagerOptions{
		Logger:             env.log,
		NegotiationTimeout: env.cfg.Robot.NegotiationTimeout,
	})
}

// session is a connected robot plus the manager that owns it.
type session struct {
	mgr   *ble.Manager
	robot *ble.Robot
}

// connect finds a robot by name when one is configured, otherwise the
// nearest one, and negotiates a connection to it.
func connect(ctx context.Context, c *cli.Context) (*session, error) {
	name := env.cfg.Robot.Name
	if n := c.GlobalString("name"); n != "" {
		name = n
	}

	m := newManager()
	var (
		robot *ble.Robot
		err   error
	)
	if name != "" {
		timeout := env.cfg.Robot.NamedTimeout
		if t := c.GlobalDuration("timeout"); t > 0 {
			timeout = t
		}
		fmt.Printf("Looking for %q (up to %s)...\n", name, timeout)
		robot, err = ble.Named(ctx, m, name, timeout)
	} else {
		timeout := env.cfg.Robot.NearestTimeout
		if t := c.GlobalDuration("timeout"); t > 0 {
			timeout = t
		}
		fmt.Printf("Looking for the nearest robot for %s...\n", timeout)
		robot, err = ble.Nearest(ctx, m, timeout)
	}
	if err != nil {
		m.Close()
		return nil, errors.Wrap(err, "can't connect")
	}

	fmt.Printf("Connected to %s [ %s ]\n", displayName(robot.Name()), robot.ID())
	return &session{mgr: m, robot: robot}, nil
}

// Close disconnects the robot and shuts down the manager.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := s.mgr.Disconnect(ctx, s.robot); err != nil && !errors.Is(err, ble.ErrContractViolation) {
		env.log.Warn("[BLE] disconnect failed", "id", s.robot.ID(), "error", err)
	}
	s.mgr.Close()
}

// withRobot connects, runs fn, and disconnects.
func withRobot(c *cli.Context, fn func(ctx context.Context, r *ble.Robot) error) error {
	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	s, err := connect(ctx, c)
	if err != nil {
		return chkErr(err)
	}
	defer s.Close()

	return chkErr(fn(ctx, s.robot))
}

func displayName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}
