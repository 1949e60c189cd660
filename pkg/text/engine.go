package text

import (
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/mrt-jh/smart-image-editor/pkg/layout"
	"github.com/mrt-jh/smart-image-editor/pkg/paint"
)

// ButtonRadius is the corner radius of button boxes.
const ButtonRadius = 20

var defaultButtonFill = color.NRGBA{0x4f, 0x46, 0xe5, 0xff}

type faceKey struct {
	size   float64
	bucket int
}

// Engine rasterizes text elements. Glyphs are always placed one by one at
// accumulated 26.6 offsets, so a line drawn as several color runs lands on
// exactly the same pixels as the same line drawn as one run.
//
// An Engine caches font faces and is not safe for concurrent use.
type Engine struct {
	book  *FontBook
	faces map[faceKey]font.Face
	log   *slog.Logger
}

// NewEngine creates an Engine over book. A nil logger uses slog.Default().
func NewEngine(book *FontBook, logger *slog.Logger) *Engine {
	if book == nil {
		book = DefaultFontBook()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		book:  book,
		faces: make(map[faceKey]font.Face),
		log:   logger,
	}
}

// Close releases the cached faces.
func (e *Engine) Close() {
	for k, f := range e.faces {
		f.Close()
		delete(e.faces, k)
	}
}

func (e *Engine) face(size float64, weight int) font.Face {
	key := faceKey{size: size, bucket: weightBucket(weight)}
	if f, ok := e.faces[key]; ok {
		return f
	}
	f := e.book.NewFace(size, weight)
	e.faces[key] = f
	return f
}

// Draw paints elements onto dst in list order; later elements paint over
// earlier ones. Elements that cannot be drawn are skipped.
func (e *Engine) Draw(dst *image.RGBA, elements []Element) {
	var dc *gg.Context
	for _, el := range elements {
		if el.Role == RoleButton {
			if dc == nil {
				dc = gg.NewContextForRGBA(dst)
			}
			drawButtonBox(dst, dc, el)
		}
		e.drawText(dst, el)
	}
}

// LineWidth returns the advance width of line in el's font, including
// letter spacing between glyphs.
func (e *Engine) LineWidth(el Element, line string) float64 {
	if el.FontSize <= 0 {
		return 0
	}
	_, w := glyphOffsets(e.face(el.FontSize, el.Weight()), []rune(line), toFixed(el.LetterSpacing))
	return float64(w) / 64
}

func drawButtonBox(dst *image.RGBA, dc *gg.Context, el Element) {
	box := layout.Rect{X: el.X, Y: el.Y, Width: el.Width, Height: el.Height}
	if box.Empty() {
		return
	}
	bg := paint.ColorOr(el.BackgroundColor, defaultButtonFill)
	paint.DrawShadow(dst, box, ButtonRadius, paint.ButtonShadow)
	paint.FillRoundedRect(dc, box, ButtonRadius, bg)
}

func (e *Engine) drawText(dst *image.RGBA, el Element) {
	if el.FontSize <= 0 {
		e.log.Debug("text: element has no font size", "id", el.ID)
		return
	}
	face := e.face(el.FontSize, el.Weight())
	fill := ResolveFill(el)
	spacing := toFixed(el.LetterSpacing)
	lines := el.Lines()
	boxes := layout.TextLines(layout.TextBox{
		X:        el.X,
		Y:        el.Y,
		Width:    el.Width,
		Height:   el.Height,
		FontSize: el.FontSize,
		Centered: el.Role != RoleBody,
		Middle:   el.Role == RoleButton,
	}, len(lines))

	var gradient image.Image
	if fill.Kind == FillGradient {
		gradient = paint.PatternImage{
			Pattern: paint.LinearGradient(el.X, el.X+el.Width, el.Y, fill.From, fill.To),
			Rect:    dst.Bounds(),
		}
	}

	m := face.Metrics()
	// offset is the flattened index of the line's first character; each
	// line break counts as one.
	offset := 0
	for i, line := range lines {
		runes := []rune(line)
		if len(runes) == 0 {
			offset++
			continue
		}
		box := boxes[i]
		offs, width := glyphOffsets(face, runes, spacing)

		x0 := toFixed(box.X)
		if el.Role != RoleBody {
			x0 -= width / 2
		}
		baseline := toFixed(box.Y) + m.Ascent
		if box.Anchor == layout.AnchorMiddle {
			baseline = toFixed(box.Y) + (m.Ascent-m.Descent)/2
		}
		l := textLine{face: face, runes: runes, offs: offs, x0: x0, baseline: baseline, pad: int(math.Ceil(el.FontSize))}

		switch fill.Kind {
		case FillSegmented:
			spans := colorSpans(fill, offset, len(runes))
			l.offs = spanOffsets(face, runes, spacing, spans)
			for _, sp := range spans {
				l.drawRun(dst, sp.from, sp.to, image.NewUniform(sp.color))
			}
		case FillGradient:
			l.drawRun(dst, 0, len(runes), gradient)
		default:
			l.drawRun(dst, 0, len(runes), image.NewUniform(fill.Color))
		}
		offset += len(runes) + 1
	}
}

// textLine is one positioned line of glyphs.
type textLine struct {
	face     font.Face
	runes    []rune
	offs     []fixed.Int26_6
	x0       fixed.Int26_6
	baseline fixed.Int26_6
	pad      int
}

// drawRun rasterizes glyphs [from, to) into an alpha mask and composites
// src through it onto dst.
func (l textLine) drawRun(dst *image.RGBA, from, to int, src image.Image) {
	m := l.face.Metrics()
	lastAdv, _ := l.face.GlyphAdvance(l.runes[to-1])
	left := l.x0 + l.offs[from]
	right := l.x0 + l.offs[to-1] + lastAdv

	mb := image.Rect(
		left.Floor()-l.pad,
		(l.baseline-m.Ascent).Floor()-l.pad,
		right.Ceil()+l.pad,
		(l.baseline+m.Descent).Ceil()+l.pad,
	).Intersect(dst.Bounds())
	if mb.Empty() {
		return
	}

	mask := image.NewAlpha(mb)
	d := font.Drawer{Dst: mask, Src: image.Opaque, Face: l.face}
	for k := from; k < to; k++ {
		d.Dot = fixed.Point26_6{X: l.x0 + l.offs[k], Y: l.baseline}
		d.DrawString(string(l.runes[k]))
	}
	draw.DrawMask(dst, mb, src, mb.Min, mask, mb.Min, draw.Over)
}

// glyphOffsets returns the x offset of every glyph relative to the line
// start and the total line width. Glyph i sits at the kerned advance of the
// preceding glyphs plus i·spacing.
func glyphOffsets(face font.Face, runes []rune, spacing fixed.Int26_6) ([]fixed.Int26_6, fixed.Int26_6) {
	offs := make([]fixed.Int26_6, len(runes))
	if len(runes) == 0 {
		return offs, 0
	}
	var adv fixed.Int26_6
	prev := rune(-1)
	for i, r := range runes {
		if prev >= 0 {
			adv += face.Kern(prev, r)
		}
		offs[i] = adv + spacing*fixed.Int26_6(i)
		a, _ := face.GlyphAdvance(r)
		adv += a
		prev = r
	}
	return offs, adv + spacing*fixed.Int26_6(len(runes)-1)
}

// colorSpan is a maximal run of same-colored glyphs [from, to) in a line.
type colorSpan struct {
	from, to int
	color    color.NRGBA
}

// colorSpans splits a line of n glyphs, whose first glyph has flattened
// index offset, into spans of one color.
func colorSpans(fill Fill, offset, n int) []colorSpan {
	var spans []colorSpan
	start := 0
	for j := 0; j < n; j++ {
		c := fill.ColorAt(offset + j)
		if j == n-1 || fill.ColorAt(offset+j+1) != c {
			spans = append(spans, colorSpan{from: start, to: j + 1, color: c})
			start = j + 1
		}
	}
	return spans
}

// spanOffsets places each span right after the previous one's spaced
// width. Spacing falls between glyphs of a span, never at a color change.
func spanOffsets(face font.Face, runes []rune, spacing fixed.Int26_6, spans []colorSpan) []fixed.Int26_6 {
	offs := make([]fixed.Int26_6, len(runes))
	var x fixed.Int26_6
	for _, sp := range spans {
		local, w := glyphOffsets(face, runes[sp.from:sp.to], spacing)
		for k, o := range local {
			offs[sp.from+k] = x + o
		}
		x += w
	}
	return offs
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
