package layout

// Logo height bounds and defaults, in canvas pixels.
const (
	DefaultLogoHeight     = 56
	MinLogoHeight         = 24
	MaxLogoHeight         = 200
	DefaultLogoGap        = 16
	DefaultSeparatorWidth = 4

	// SeparatorRatio is the separator bar height relative to the logo height.
	SeparatorRatio = 0.8

	// HandleSize is the side of the square resize handle in preview pixels.
	HandleSize = 16
)

// LogoSlot is the anchor of a single-logo template.
type LogoSlot struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// MultiLogoSlot describes a horizontal row of logos split by separators.
type MultiLogoSlot struct {
	X              float64 `yaml:"x" json:"x"`
	Y              float64 `yaml:"y" json:"y"`
	MaxHeight      float64 `yaml:"maxHeight" json:"maxHeight"`
	LogoGap        float64 `yaml:"logoGap,omitempty" json:"logoGap,omitempty"`
	SeparatorWidth float64 `yaml:"separatorWidth,omitempty" json:"separatorWidth,omitempty"`
}

// Gap returns LogoGap with the default applied.
func (m MultiLogoSlot) Gap() float64 {
	if m.LogoGap <= 0 {
		return DefaultLogoGap
	}
	return m.LogoGap
}

// Separator returns SeparatorWidth with the default applied.
func (m MultiLogoSlot) Separator() float64 {
	if m.SeparatorWidth <= 0 {
		return DefaultSeparatorWidth
	}
	return m.SeparatorWidth
}

// Height picks the row height: the live logo height when set, otherwise
// the slot maximum.
func (m MultiLogoSlot) Height(logoHeight float64) float64 {
	if logoHeight > 0 {
		return logoHeight
	}
	if m.MaxHeight > 0 {
		return m.MaxHeight
	}
	return DefaultLogoHeight
}

// SingleLogo places one logo at the slot anchor. The height is fixed to
// logoHeight (DefaultLogoHeight when unset) and the width follows the
// source aspect ratio.
func SingleLogo(slot LogoSlot, src Size, logoHeight float64) Rect {
	if logoHeight <= 0 {
		logoHeight = DefaultLogoHeight
	}
	return Rect{X: slot.X, Y: slot.Y, Width: logoHeight * src.Aspect(), Height: logoHeight}
}

// LogoRow is the resolved geometry of a multi-logo slot.
type LogoRow struct {
	Logos      []Rect
	Separators []Rect
}

// MultiLogo lays logos out left to right from the slot anchor. Each logo
// gets the row height and its own aspect-derived width; a separator bar is
// centered in every gap between adjacent logos and never after the last.
func MultiLogo(slot MultiLogoSlot, srcs []Size, logoHeight float64) LogoRow {
	if len(srcs) == 0 {
		return LogoRow{}
	}
	h := slot.Height(logoHeight)
	gap := slot.Gap()
	sepW := slot.Separator()
	sepH := h * SeparatorRatio

	row := LogoRow{
		Logos:      make([]Rect, 0, len(srcs)),
		Separators: make([]Rect, 0, len(srcs)-1),
	}
	x := slot.X
	for i, src := range srcs {
		w := h * src.Aspect()
		row.Logos = append(row.Logos, Rect{X: x, Y: slot.Y, Width: w, Height: h})
		x += w
		if i == len(srcs)-1 {
			break
		}
		row.Separators = append(row.Separators, Rect{
			X:      x + (gap-sepW)/2,
			Y:      slot.Y + (h-sepH)/2,
			Width:  sepW,
			Height: sepH,
		})
		x += gap
	}
	return row
}

// ResizeHandle returns the hit target for the logo resize gesture: a
// HandleSize square centered on the bottom-right corner of the first logo,
// positioned in preview coordinates. The handle itself is not scaled.
func ResizeHandle(first Rect, previewScale float64) Rect {
	if previewScale <= 0 {
		previewScale = 1
	}
	return Rect{
		X:      first.Right()*previewScale - HandleSize/2,
		Y:      first.Bottom()*previewScale - HandleSize/2,
		Width:  HandleSize,
		Height: HandleSize,
	}
}

// ClampLogoHeight bounds h to [MinLogoHeight, MaxLogoHeight].
func ClampLogoHeight(h float64) float64 {
	if h < MinLogoHeight {
		return MinLogoHeight
	}
	if h > MaxLogoHeight {
		return MaxLogoHeight
	}
	return h
}
