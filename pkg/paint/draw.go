package paint

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/mrt-jh/smart-image-editor/pkg/layout"
)

// Shadow describes a soft drop shadow under a rounded rectangle.
type Shadow struct {
	Blur    float64
	OffsetY float64
	Color   color.Color
}

// ButtonShadow is the shadow painted under button-style text boxes.
var ButtonShadow = Shadow{
	Blur:    6,
	OffsetY: 3,
	Color:   color.NRGBA{0, 0, 0, 38},
}

// DrawShadow paints a blurred rounded rectangle r shifted by the shadow
// offset. The blur is a gaussian with sigma Blur/2 on a padded scratch
// surface that is composited over dst.
func DrawShadow(dst *image.RGBA, r layout.Rect, radius float64, s Shadow) {
	if r.Empty() || s.Color == nil {
		return
	}
	pad := int(math.Ceil(s.Blur * 2))
	w := int(math.Ceil(r.Width)) + 2*pad
	h := int(math.Ceil(r.Height)) + 2*pad

	scratch := gg.NewContext(w, h)
	scratch.SetColor(s.Color)
	scratch.DrawRoundedRectangle(float64(pad), float64(pad), r.Width, r.Height, radius)
	scratch.Fill()

	var src image.Image = scratch.Image()
	if s.Blur > 0 {
		src = imaging.Blur(src, s.Blur/2)
	}

	x0 := int(math.Round(r.X)) - pad
	y0 := int(math.Round(r.Y+s.OffsetY)) - pad
	target := image.Rect(x0, y0, x0+w, y0+h)
	draw.Draw(dst, target, src, image.Point{}, draw.Over)
}

// FillRoundedRect fills r with c using corner radius.
func FillRoundedRect(dc *gg.Context, r layout.Rect, radius float64, c color.Color) {
	if r.Empty() {
		return
	}
	dc.SetColor(c)
	dc.DrawRoundedRectangle(r.X, r.Y, r.Width, r.Height, radius)
	dc.Fill()
}

// FillRect fills r with c.
func FillRect(dc *gg.Context, r layout.Rect, c color.Color) {
	if r.Empty() {
		return
	}
	dc.SetColor(c)
	dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	dc.Fill()
}

// DrawImageRect scales img to r rounded to whole pixels and draws it there.
func DrawImageRect(dc *gg.Context, img image.Image, r layout.Rect) {
	if img == nil {
		return
	}
	px := r.Pixels()
	if px.Dx() <= 0 || px.Dy() <= 0 {
		return
	}
	b := img.Bounds()
	scaled := img
	if b.Dx() != px.Dx() || b.Dy() != px.Dy() {
		scaled = imaging.Resize(img, px.Dx(), px.Dy(), imaging.Lanczos)
	}
	dc.DrawImage(scaled, px.Min.X, px.Min.Y)
}
