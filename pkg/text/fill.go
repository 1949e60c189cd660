package text

import (
	"image/color"

	"github.com/mrt-jh/smart-image-editor/pkg/paint"
)

// FillKind tags the variant held by a Fill.
type FillKind int

const (
	FillSolid FillKind = iota
	FillGradient
	FillSegmented
)

func (k FillKind) String() string {
	switch k {
	case FillGradient:
		return "gradient"
	case FillSegmented:
		return "segmented"
	default:
		return "solid"
	}
}

// Segment is a ColorSegment with its color parsed.
type Segment struct {
	Start, End int
	Color      color.NRGBA
}

// Fill is the resolved paint of an element: Solid(Color),
// Gradient(From, To) or Segmented(Segments over base Color).
type Fill struct {
	Kind     FillKind
	Color    color.NRGBA
	From, To color.NRGBA
	Segments []Segment
}

var defaultTextColor = color.NRGBA{0, 0, 0, 255}

// ResolveFill picks the element fill once, in priority order: buttons are
// always solid, then color segments, then gradient, then plain color.
// Unparseable segment colors fall back to the base color.
func ResolveFill(e Element) Fill {
	base := parseOr(e.Color, defaultTextColor)

	if e.Role != RoleButton && len(e.ColorSegments) > 0 {
		segs := make([]Segment, 0, len(e.ColorSegments))
		for _, s := range e.ColorSegments {
			if s.End <= s.Start {
				continue
			}
			segs = append(segs, Segment{Start: s.Start, End: s.End, Color: parseOr(s.Color, base)})
		}
		return Fill{Kind: FillSegmented, Color: base, Segments: segs}
	}
	if e.Role != RoleButton && e.Gradient != nil {
		return Fill{
			Kind:  FillGradient,
			Color: base,
			From:  parseOr(e.Gradient.From, base),
			To:    parseOr(e.Gradient.To, base),
		}
	}
	return Fill{Kind: FillSolid, Color: base}
}

// ColorAt returns the color of the character at flattened index i. The
// first segment containing i wins.
func (f Fill) ColorAt(i int) color.NRGBA {
	if f.Kind != FillSegmented {
		return f.Color
	}
	for _, s := range f.Segments {
		if i >= s.Start && i < s.End {
			return s.Color
		}
	}
	return f.Color
}

func parseOr(s string, def color.NRGBA) color.NRGBA {
	c, err := paint.ParseColor(s)
	if err != nil {
		return def
	}
	return c
}
