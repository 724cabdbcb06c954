package ble

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/chaz8081/gosphero/internal/ble/protocol"
)

// Robot is a connected, negotiated Sphero. It is the only path through
// which commands reach the device and becomes invalid when the link drops.
type Robot struct {
	id       string
	name     string
	commands Characteristic

	mu      sync.Mutex
	invalid bool
	done    chan struct{}
}

func newRobot(desc Description, commands Characteristic) *Robot {
	return &Robot{
		id:       desc.ID,
		name:     desc.Name,
		commands: commands,
		done:     make(chan struct{}),
	}
}

// ID returns the platform identifier of the peripheral.
func (r *Robot) ID() string { return r.id }

// Name returns the advertised name, possibly empty.
func (r *Robot) Name() string { return r.name }

// Done is closed once the robot has been invalidated.
func (r *Robot) Done() <-chan struct{} { return r.done }

// Valid reports whether commands can still be sent.
func (r *Robot) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.invalid
}

// invalidate marks the link as gone. Safe to call more than once.
func (r *Robot) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalid {
		return
	}
	r.invalid = true
	close(r.done)
}

// Send frames cmd and writes it to the command characteristic. There is no
// queueing: one call is one write.
func (r *Robot) Send(cmd protocol.Command) error {
	r.mu.Lock()
	if r.invalid {
		r.mu.Unlock()
		return fmt.Errorf("ble: send to %s: %w", r.id, ErrLinkInvalidated)
	}
	commands := r.commands
	r.mu.Unlock()

	if err := commands.Write(protocol.Encode(cmd, 0)); err != nil {
		return fmt.Errorf("ble: send to %s: %w", r.id, err)
	}
	return nil
}

// Roll drives at speed towards heading (degrees).
func (r *Robot) Roll(speed uint8, heading uint16) error {
	return r.Send(protocol.Roll{Speed: speed, Heading: heading, State: protocol.MotionGo})
}

// Stop brings the robot to rest keeping its heading.
func (r *Robot) Stop(heading uint16) error {
	return r.Send(protocol.Roll{Heading: heading, State: protocol.MotionStop})
}

// SetColor sets the main LED.
func (r *Robot) SetColor(c color.Color) error {
	return r.Send(protocol.ColorFrom(c, false))
}

// SetRGB sets the main LED from 8-bit components.
func (r *Robot) SetRGB(red, green, blue uint8) error {
	return r.Send(protocol.SetColor{R: red, G: green, B: blue})
}

// SetBackBrightness sets the rear aiming LED.
func (r *Robot) SetBackBrightness(level uint8) error {
	return r.Send(protocol.SetBackBrightness{Level: level})
}

// SetHeading makes the current orientation the given heading.
func (r *Robot) SetHeading(heading uint16) error {
	return r.Send(protocol.SetHeading{Heading: heading})
}
