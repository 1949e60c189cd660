package paint

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// LinearGradient returns a left-to-right gradient pattern spanning
// [x0, x1] in canvas coordinates. A zero-width span degenerates to a
// solid fill of from, since a zero-length gg gradient is transparent.
func LinearGradient(x0, x1, y float64, from, to color.Color) gg.Pattern {
	if x1 <= x0 {
		return gg.NewSolidPattern(from)
	}
	g := gg.NewLinearGradient(x0, y, x1, y)
	g.AddColorStop(0, from)
	g.AddColorStop(1, to)
	return g
}

// PatternImage adapts a gg.Pattern to image.Image so it can be used as a
// draw source. Pattern coordinates equal image coordinates.
type PatternImage struct {
	Pattern gg.Pattern
	Rect    image.Rectangle
}

// ColorModel implements image.Image.
func (p PatternImage) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (p PatternImage) Bounds() image.Rectangle { return p.Rect }

// At implements image.Image.
func (p PatternImage) At(x, y int) color.Color {
	return p.Pattern.ColorAt(x, y)
}
