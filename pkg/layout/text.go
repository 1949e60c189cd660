package layout

// LineHeightFactor is the line advance relative to the font size.
const LineHeightFactor = 1.2

// Anchor says how a line box's Y relates to the glyphs drawn in it.
type Anchor int

const (
	// AnchorTop means Y is the top of the line.
	AnchorTop Anchor = iota
	// AnchorMiddle means Y is the vertical middle of the line.
	AnchorMiddle
)

// LineBox is where one line of a text element starts. X is the alignment
// reference: the left edge for left-aligned text, the center for centered
// text.
type LineBox struct {
	Index  int
	X, Y   float64
	Anchor Anchor
}

// TextBox is the layout input of a text element.
type TextBox struct {
	X, Y, Width, Height float64
	FontSize            float64
	Centered            bool
	// Middle anchors lines on the vertical middle of the box (buttons).
	Middle bool
}

// LineHeight returns fontSize × LineHeightFactor.
func LineHeight(fontSize float64) float64 {
	return fontSize * LineHeightFactor
}

// TextLines resolves the start of each of n lines. Line i starts at
// y + i·lineHeight, or at the vertical middle of the box plus i·lineHeight
// for middle-anchored boxes.
func TextLines(box TextBox, n int) []LineBox {
	if n <= 0 {
		return nil
	}
	lh := LineHeight(box.FontSize)
	x := box.X
	if box.Centered {
		x = box.X + box.Width/2
	}
	y0 := box.Y
	anchor := AnchorTop
	if box.Middle {
		y0 = box.Y + box.Height/2
		anchor = AnchorMiddle
	}

	lines := make([]LineBox, n)
	for i := range lines {
		lines[i] = LineBox{Index: i, X: x, Y: y0 + float64(i)*lh, Anchor: anchor}
	}
	return lines
}
