// Package drive turns joystick and keyboard input into roll commands.
package drive

import (
	"image/color"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// Sender is the interface a connected robot exposes for driving.
type Sender interface {
	Roll(speed uint8, heading uint16) error
	Stop(heading uint16) error
	SetColor(c color.Color) error
}

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(r float64) float64 {
	return r * 180 / math.Pi
}

// Joystick maps a stick position to a roll. angle is in radians clockwise
// from straight ahead; magnitude is 0 at rest and 1 at full deflection.
// maxSpeed is the fraction of full speed reached at full deflection.
func Joystick(angle, magnitude, maxSpeed float64) (speed uint8, heading uint16) {
	magnitude = math.Max(0, math.Min(1, magnitude))
	speed = uint8(magnitude * maxSpeed * math.MaxUint8)

	angle = math.Mod(angle, 2*math.Pi)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	heading = uint16(math.Round(RadiansToDegrees(angle))) % 360
	return speed, heading
}

// Keys is the pressed state of the four direction keys.
type Keys struct {
	Forward, Backward, Left, Right bool
}

// Vector returns the stick position the keys describe. Opposite keys
// cancel; diagonals are clamped to full deflection.
func (k Keys) Vector() (angle, magnitude float64) {
	var x, y float64
	if k.Forward {
		y++
	}
	if k.Backward {
		y--
	}
	if k.Right {
		x++
	}
	if k.Left {
		x--
	}
	if x == 0 && y == 0 {
		return 0, 0
	}
	return math.Atan2(x, y), math.Min(1, math.Hypot(x, y))
}

// Bindings maps key names to drive actions.
type Bindings struct {
	Forward, Backward, Left, Right, Stop string
}

// Apply updates k for a key transition. stop reports a press of the stop
// key, which also releases every direction.
func (b Bindings) Apply(k Keys, key string, down bool) (next Keys, stop bool) {
	switch key {
	case b.Forward:
		k.Forward = down
	case b.Backward:
		k.Backward = down
	case b.Left:
		k.Left = down
	case b.Right:
		k.Right = down
	case b.Stop:
		if down {
			return Keys{}, true
		}
	}
	return k, false
}

// Options configures a Controller.
type Options struct {
	MaxSpeed float64 // fraction of full speed at full deflection
	Rate     float64 // roll commands per second
	Burst    int
	Logger   *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{MaxSpeed: 0.5, Rate: 10, Burst: 2}
}

// Controller throttles roll commands to a Sender. Stops are never dropped.
type Controller struct {
	sender   Sender
	maxSpeed float64
	limiter  *rate.Limiter
	log      *slog.Logger

	mu      sync.Mutex
	heading uint16
	moving  bool
	last    struct {
		speed   uint8
		heading uint16
	}
}

// NewController creates a Controller driving sender.
// Panics if sender is nil (programmer error).
func NewController(sender Sender, opts Options) *Controller {
	if sender == nil {
		panic("drive: NewController called with nil sender")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	return &Controller{
		sender:   sender,
		maxSpeed: opts.MaxSpeed,
		limiter:  rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		log:      opts.Logger,
	}
}

// Move rolls towards angle at a speed proportional to magnitude. A zero
// speed stops the robot. Rolls over the rate limit are dropped; the next
// accepted one carries the latest position.
func (c *Controller) Move(angle, magnitude float64) error {
	speed, heading := Joystick(angle, magnitude, c.maxSpeed)
	if speed == 0 {
		return c.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.moving && c.last.speed == speed && c.last.heading == heading {
		return nil
	}
	if !c.limiter.Allow() {
		c.log.Debug("[drive] roll throttled", "speed", speed, "heading", heading)
		return nil
	}
	if err := c.sender.Roll(speed, heading); err != nil {
		return err
	}
	c.heading = heading
	c.moving = true
	c.last.speed, c.last.heading = speed, heading
	return nil
}

// MoveKeys drives according to the pressed direction keys.
func (c *Controller) MoveKeys(k Keys) error {
	return c.Move(k.Vector())
}

// Stop halts the robot facing its last heading.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moving = false
	return c.sender.Stop(c.heading)
}

// SetColor sets the robot's main LED.
func (c *Controller) SetColor(col color.Color) error {
	return c.sender.SetColor(col)
}
