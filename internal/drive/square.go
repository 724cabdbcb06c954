package drive

import (
	"context"
	"image/color"
	"time"
)

// Palette is cycled through by Square, one colour per side.
var Palette = []color.RGBA{
	{R: 0x33, G: 0x9A, B: 0xF5, A: 0xFF},
	{R: 0x29, G: 0x00, B: 0xD1, A: 0xFF},
	{R: 0xC0, G: 0x00, B: 0x44, A: 0xFF},
	{R: 0xE8, G: 0x42, B: 0x26, A: 0xFF},
	{R: 0xF1, G: 0xA6, B: 0x28, A: 0xFF},
	{R: 0x67, G: 0xBA, B: 0x35, A: 0xFF},
}

// SquareSpeed is a quarter of full speed.
const SquareSpeed = 255 / 4

// Square rolls the robot around a square, side long per edge, changing
// colour after each edge, until ctx is done. The robot is stopped before
// returning.
func Square(ctx context.Context, s Sender, side time.Duration) error {
	headings := [...]uint16{0, 90, 180, 270}
	timer := time.NewTimer(side)
	defer timer.Stop()

	for i := 0; ; i++ {
		heading := headings[i%len(headings)]
		if err := s.Roll(SquareSpeed, heading); err != nil {
			return err
		}

		timer.Reset(side)
		select {
		case <-ctx.Done():
			if err := s.Stop(heading); err != nil {
				return err
			}
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.SetColor(Palette[i%len(Palette)]); err != nil {
			return err
		}
	}
}
