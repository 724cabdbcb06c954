package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/chaz8081/gosphero/internal/ble"
	"github.com/chaz8081/gosphero/internal/ble/protocol"
	"github.com/chaz8081/gosphero/internal/drive"
)

type scanResult struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	RSSI *int   `json:"rssi,omitempty"` // nil when unavailable
}

func scan(c *cli.Context) error {
	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	m := newManager()
	defer m.Close()

	if !c.Bool("json") {
		fmt.Printf("Scanning for %s...\n", c.Duration("duration"))
	}
	devices, err := ble.ScanForDevices(ctx, m, c.Duration("duration"))
	if err = chkErr(err); err != nil {
		return err
	}

	if c.Bool("json") {
		results := make([]scanResult, 0, len(devices))
		for _, d := range devices {
			r := scanResult{ID: d.ID, Name: d.Name}
			if d.RSSI != ble.InvalidRSSI {
				rssi := d.RSSI
				r.RSSI = &rssi
			}
			results = append(results, r)
		}
		out, err := jsoniter.MarshalIndent(results, "", "  ")
		if err != nil {
			return errors.Wrap(err, "can't encode results")
		}
		fmt.Println(string(out))
		return nil
	}

	if len(devices) == 0 {
		fmt.Println("No robots found.")
		return nil
	}
	for _, d := range devices {
		rssi := "n/a"
		if d.RSSI != ble.InvalidRSSI {
			rssi = fmt.Sprintf("%d dBm", d.RSSI)
		}
		fmt.Printf("[ %s ] %-12s %s\n", d.ID, displayName(d.Name), rssi)
	}
	return nil
}

// parseRGB accepts RRGGBB with an optional leading #.
func parseRGB(s string) (r, g, b uint8, err error) {
	s = strings.TrimPrefix(s, "#")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 3 {
		return 0, 0, 0, fmt.Errorf("colour must be RRGGBB, got %q", s)
	}
	return raw[0], raw[1], raw[2], nil
}

// parseByteArg parses the first argument as an integer in [0, max].
func parseByteArg(c *cli.Context, what string, max int) (int, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("expected one %s argument", what)
	}
	v, err := strconv.Atoi(c.Args().First())
	if err != nil || v < 0 || v > max {
		return 0, fmt.Errorf("%s must be 0-%d, got %q", what, max, c.Args().First())
	}
	return v, nil
}

func setColor(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one RRGGBB argument")
	}
	r, g, b, err := parseRGB(c.Args().First())
	if err != nil {
		return err
	}
	return withRobot(c, func(_ context.Context, robot *ble.Robot) error {
		return robot.Send(protocol.SetColor{R: r, G: g, B: b, Persist: c.Bool("persist")})
	})
}

func roll(c *cli.Context) error {
	speed := c.Int("speed")
	if speed < 0 || speed > 255 {
		return fmt.Errorf("speed must be 0-255, got %d", speed)
	}
	h := c.Int("heading")
	if h < 0 {
		return fmt.Errorf("heading must not be negative, got %d", h)
	}
	return withRobot(c, func(ctx context.Context, robot *ble.Robot) error {
		heading := uint16(h % 360)
		if err := robot.Roll(uint8(speed), heading); err != nil {
			return err
		}
		select {
		case <-time.After(c.Duration("for")):
		case <-ctx.Done():
		case <-robot.Done():
			return ble.ErrLinkInvalidated
		}
		return robot.Stop(heading)
	})
}

func brightness(c *cli.Context) error {
	level, err := parseByteArg(c, "brightness", 255)
	if err != nil {
		return err
	}
	return withRobot(c, func(_ context.Context, robot *ble.Robot) error {
		return robot.SetBackBrightness(uint8(level))
	})
}

func heading(c *cli.Context) error {
	deg, err := parseByteArg(c, "heading", 359)
	if err != nil {
		return err
	}
	return withRobot(c, func(_ context.Context, robot *ble.Robot) error {
		return robot.SetHeading(uint16(deg))
	})
}

func square(c *cli.Context) error {
	return withRobot(c, func(ctx context.Context, robot *ble.Robot) error {
		fmt.Println("Rolling in a square. Ctrl+C to stop.")
		return drive.Square(ctx, robot, c.Duration("side"))
	})
}
