// Package colorutil provides the overlay colors used by debug drawings.
package colorutil

import (
	"image/color"
	"math"
)

// Overlay colors.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Blue    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// Lerp blends from a to b; t is clamped to [0, 1].
func Lerp(a, b color.RGBA, t float64) color.RGBA {
	if math.IsNaN(t) || t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

// ForWeight colors a match by its trust weight: red when rejected, green when fully trusted.
func ForWeight(w float64) color.RGBA {
	return Lerp(Red, Green, w)
}
