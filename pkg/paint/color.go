// Package paint holds the drawing primitives shared by the compositor and
// the text engine: CSS color parsing, gradient sources, drop shadows and
// scaled image placement on a gg surface.
package paint

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// named covers the CSS keywords the editor UI emits.
var named = map[string]color.NRGBA{
	"transparent": {0, 0, 0, 0},
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"indigo":      {75, 0, 130, 255},
	"navy":        {0, 0, 128, 255},
}

// ParseColor parses a CSS color: #rgb, #rgba, #rrggbb, #rrggbbaa,
// rgb(r,g,b), rgba(r,g,b,a) or a handful of keywords.
func ParseColor(s string) (color.NRGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return color.NRGBA{}, fmt.Errorf("paint: empty color")
	}
	if c, ok := named[v]; ok {
		return c, nil
	}
	if strings.HasPrefix(v, "rgb") {
		return parseFunc(v)
	}
	if !strings.HasPrefix(v, "#") {
		return color.NRGBA{}, fmt.Errorf("paint: unsupported color %q", s)
	}

	alpha := uint8(255)
	hex := v
	switch len(v) {
	case 5: // #rgba
		a, err := strconv.ParseUint(v[4:5], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("paint: bad color %q: %w", s, err)
		}
		alpha = uint8(a * 17)
		hex = v[:4]
	case 9: // #rrggbbaa
		a, err := strconv.ParseUint(v[7:9], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("paint: bad color %q: %w", s, err)
		}
		alpha = uint8(a)
		hex = v[:7]
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("paint: bad color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// parseFunc handles rgb() and rgba() notation.
func parseFunc(v string) (color.NRGBA, error) {
	open := strings.IndexByte(v, '(')
	if open < 0 || !strings.HasSuffix(v, ")") {
		return color.NRGBA{}, fmt.Errorf("paint: bad color %q", v)
	}
	parts := strings.Split(v[open+1:len(v)-1], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("paint: bad color %q", v)
	}

	var ch [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil || n < 0 || n > 255 {
			return color.NRGBA{}, fmt.Errorf("paint: bad channel %q in %q", parts[i], v)
		}
		ch[i] = uint8(n + 0.5)
	}
	alpha := uint8(255)
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return color.NRGBA{}, fmt.Errorf("paint: bad alpha %q in %q", parts[3], v)
		}
		alpha = uint8(a*255 + 0.5)
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: alpha}, nil
}

// ColorOr parses s and falls back to def when s is empty or invalid.
func ColorOr(s string, def color.Color) color.Color {
	c, err := ParseColor(s)
	if err != nil {
		return def
	}
	return c
}
