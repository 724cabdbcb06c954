// Package protocol implements the Sphero v1 BLE command protocol: the
// command catalog and the framing/checksum codec that turns a command into
// the bytes written to the robot's command characteristic.
package protocol

import "image/color"

// DeviceClass selects which module of the robot a command targets.
type DeviceClass byte

const (
	DeviceCore  DeviceClass = 0x00
	DeviceRobot DeviceClass = 0x02
)

// Command IDs within their device class.
const (
	CmdPing              byte = 0x01 // core
	CmdSetHeading        byte = 0x01 // robot
	CmdSetColor          byte = 0x20 // robot
	CmdSetBackBrightness byte = 0x21 // robot
	CmdRoll              byte = 0x30 // robot
)

// Flags are the per-command protocol options carried in SOP2.
// The zero value requests an acknowledgement and resets the robot's
// inactivity timeout, which is what every command in the catalog sends.
type Flags struct {
	NoAnswer       bool
	NoResetTimeout bool
}

// SOP2 returns the second header byte for these flags.
func (f Flags) SOP2() byte {
	v := byte(0xFC)
	if !f.NoAnswer {
		v |= 1 << 0
	}
	if !f.NoResetTimeout {
		v |= 1 << 1
	}
	return v
}

// Command is a typed request that can be framed by Encode.
type Command interface {
	Device() DeviceClass
	ID() byte
	// Payload returns the command payload, or nil when there is none.
	Payload() []byte
	Options() Flags
}

// MotionState is the last payload byte of Roll.
type MotionState uint8

const (
	MotionStop MotionState = 0
	MotionGo   MotionState = 1
)

// Ping asks the core module to answer, proving the link is alive.
type Ping struct {
	Flags Flags
}

func (Ping) Device() DeviceClass { return DeviceCore }
func (Ping) ID() byte            { return CmdPing }
func (Ping) Payload() []byte     { return nil }
func (p Ping) Options() Flags    { return p.Flags }

// SetHeading re-zeroes the robot's heading. Heading is reduced modulo 360,
// so h and h+360k encode the same for any k that keeps the value within
// uint16 (at most 65535).
type SetHeading struct {
	Heading uint16
	Flags   Flags
}

func (SetHeading) Device() DeviceClass { return DeviceRobot }
func (SetHeading) ID() byte            { return CmdSetHeading }
func (c SetHeading) Options() Flags    { return c.Flags }

func (c SetHeading) Payload() []byte {
	hi, lo := headingBytes(c.Heading)
	return []byte{hi, lo}
}

// SetColor sets the main RGB LED. Persist stores the colour as the
// robot's default.
type SetColor struct {
	R, G, B uint8
	Persist bool
	Flags   Flags
}

func (SetColor) Device() DeviceClass { return DeviceRobot }
func (SetColor) ID() byte            { return CmdSetColor }
func (c SetColor) Options() Flags    { return c.Flags }

func (c SetColor) Payload() []byte {
	var persist byte
	if c.Persist {
		persist = 1
	}
	return []byte{c.R, c.G, c.B, persist}
}

// ColorFrom converts any colour to a SetColor command.
func ColorFrom(c color.Color, persist bool) SetColor {
	r, g, b, _ := c.RGBA()
	return SetColor{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), Persist: persist}
}

// SetBackBrightness sets the brightness of the rear aiming LED.
type SetBackBrightness struct {
	Level uint8
	Flags Flags
}

func (SetBackBrightness) Device() DeviceClass { return DeviceRobot }
func (SetBackBrightness) ID() byte            { return CmdSetBackBrightness }
func (c SetBackBrightness) Payload() []byte   { return []byte{c.Level} }
func (c SetBackBrightness) Options() Flags    { return c.Flags }

// Roll drives the robot at Speed towards Heading (degrees, reduced modulo 360).
// Heading is a uint16, so wrapping by multiples of 360 holds only up to 65535.
type Roll struct {
	Speed   uint8
	Heading uint16
	State   MotionState
	Flags   Flags
}

func (Roll) Device() DeviceClass { return DeviceRobot }
func (Roll) ID() byte            { return CmdRoll }
func (c Roll) Options() Flags    { return c.Flags }

func (c Roll) Payload() []byte {
	hi, lo := headingBytes(c.Heading)
	return []byte{c.Speed, hi, lo, byte(c.State)}
}

// headingBytes wraps h into [0, 360) and splits it big-endian.
func headingBytes(h uint16) (hi, lo byte) {
	h %= 360
	return byte(h >> 8), byte(h)
}
