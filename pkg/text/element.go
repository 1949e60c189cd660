// Package text lays out and rasterizes the styled text elements of a banner:
// explicit line breaks, letter spacing, per-character color segments,
// gradients and button-style boxes.
package text

import (
	"fmt"
	"strings"
)

// Role selects the alignment and decoration rules for an element. It is
// decided once by the banner template, never inferred while drawing.
type Role int

const (
	// RoleBody is left/top aligned at (x, y).
	RoleBody Role = iota
	// RoleHeadline is horizontally centered about x+width/2, top aligned at y.
	RoleHeadline
	// RoleButton is centered both ways inside a rounded, shadowed box.
	RoleButton
)

// String returns the role name used in JSON and YAML.
func (r Role) String() string {
	switch r {
	case RoleHeadline:
		return "headline"
	case RoleButton:
		return "button"
	default:
		return "body"
	}
}

// ParseRole converts a role name. The empty string maps to RoleBody.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "body":
		return RoleBody, nil
	case "headline":
		return RoleHeadline, nil
	case "button":
		return RoleButton, nil
	default:
		return RoleBody, fmt.Errorf("text: unknown role %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Well-known element ids used by the built-in templates.
const (
	IDButton         = "button-text"
	IDMainTitle      = "main-title"
	IDSubTitle       = "sub-title"
	IDBottomSubTitle = "bottom-sub-title"
)

// DefaultFontWeight applies when an element leaves FontWeight at zero.
const DefaultFontWeight = 400

// DefaultButtonColor is the button fill used when BackgroundColor is empty.
const DefaultButtonColor = "#4F46E5"

// ButtonPlaceholder is drawn when a button element has no caption.
const ButtonPlaceholder = "Button"

// ColorSegment overrides the element color for the characters in
// [Start, End) of the flattened text, where each line break counts as one
// character.
type ColorSegment struct {
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
	Color string `json:"color" yaml:"color"`
}

// GradientSpec is a left-to-right linear gradient across the element box.
type GradientSpec struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Element is one overlay text unit.
type Element struct {
	ID              string         `json:"id" yaml:"id"`
	Role            Role           `json:"role" yaml:"role"`
	Text            string         `json:"text" yaml:"text"`
	X               float64        `json:"x" yaml:"x"`
	Y               float64        `json:"y" yaml:"y"`
	Width           float64        `json:"width" yaml:"width"`
	Height          float64        `json:"height" yaml:"height"`
	FontSize        float64        `json:"fontSize" yaml:"fontSize"`
	FontWeight      int            `json:"fontWeight,omitempty" yaml:"fontWeight,omitempty"`
	Color           string         `json:"color" yaml:"color"`
	ColorSegments   []ColorSegment `json:"colorSegments,omitempty" yaml:"colorSegments,omitempty"`
	Gradient        *GradientSpec  `json:"gradient,omitempty" yaml:"gradient,omitempty"`
	LetterSpacing   float64        `json:"letterSpacing,omitempty" yaml:"letterSpacing,omitempty"`
	BackgroundColor string         `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
}

// Weight returns the font weight with the 400 default applied.
func (e Element) Weight() int {
	if e.FontWeight <= 0 {
		return DefaultFontWeight
	}
	return e.FontWeight
}

// Lines splits the element text on explicit line breaks. Buttons with an
// empty caption yield the placeholder.
func (e Element) Lines() []string {
	s := e.Text
	if e.Role == RoleButton && s == "" {
		s = ButtonPlaceholder
	}
	return strings.Split(s, "\n")
}
