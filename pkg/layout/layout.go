// Package layout resolves banner geometry: where the background lands on the
// canvas, where each logo and separator goes, where the resize handle sits,
// and where every text line starts.
//
// All functions are pure. Coordinates are canvas pixels as float64; callers
// round only when rasterizing.
package layout

import (
	"image"
	"math"
)

// Rect represents a rectangular area in canvas pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty returns true if this rectangle has zero area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the X coordinate of the right edge (exclusive).
func (r Rect) Right() float64 {
	return r.X + r.Width
}

// Bottom returns the Y coordinate of the bottom edge (exclusive).
func (r Rect) Bottom() float64 {
	return r.Y + r.Height
}

// Contains returns true if the point (px, py) lies within this rectangle.
func (r Rect) Contains(px, py float64) bool {
	return px >= r.X && px < r.Right() && py >= r.Y && py < r.Bottom()
}

// Within reports whether r lies entirely inside outer, allowing eps of
// floating point slack on each edge.
func (r Rect) Within(outer Rect, eps float64) bool {
	return r.X >= outer.X-eps && r.Y >= outer.Y-eps &&
		r.Right() <= outer.Right()+eps && r.Bottom() <= outer.Bottom()+eps
}

// Pixels rounds the rectangle to integer pixel bounds.
func (r Rect) Pixels() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	return image.Rect(x0, y0, x0+int(math.Round(r.Width)), y0+int(math.Round(r.Height)))
}

// Size is the intrinsic pixel size of a decoded image.
type Size struct {
	W, H float64
}

// SizeOf returns the bounds size of img, or the zero Size for nil.
func SizeOf(img image.Image) Size {
	if img == nil {
		return Size{}
	}
	b := img.Bounds()
	return Size{W: float64(b.Dx()), H: float64(b.Dy())}
}

// Aspect returns width / height, or 0 for a degenerate size.
func (s Size) Aspect() float64 {
	if s.W <= 0 || s.H <= 0 {
		return 0
	}
	return s.W / s.H
}

// ContainFit scales src to fit entirely inside a canvasW x canvasH canvas
// preserving its aspect ratio. Images relatively wider than the canvas fill
// the full width and are centered vertically; all others fill the full
// height and are centered horizontally. A degenerate source yields an
// empty Rect.
func ContainFit(src Size, canvasW, canvasH float64) Rect {
	imageRatio := src.Aspect()
	if imageRatio == 0 || canvasW <= 0 || canvasH <= 0 {
		return Rect{}
	}
	canvasRatio := canvasW / canvasH

	if imageRatio > canvasRatio {
		h := canvasW / imageRatio
		return Rect{X: 0, Y: (canvasH - h) / 2, Width: canvasW, Height: h}
	}
	w := canvasH * imageRatio
	return Rect{X: (canvasW - w) / 2, Y: 0, Width: w, Height: canvasH}
}

// PreviewScale returns the factor that fits a canvas into the bounded
// preview box without ever upscaling past 1.
func PreviewScale(canvasW, canvasH, maxW, maxH float64) float64 {
	if canvasW <= 0 || canvasH <= 0 {
		return 1
	}
	return math.Min(math.Min(maxW/canvasW, maxH/canvasH), 1)
}
