// Package catalog defines the banner templates the editor offers. Templates
// are keyed "{bannerType}-{deviceType}", loaded once at startup from an
// embedded YAML file optionally merged with a user file, and read-only
// thereafter.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrt-jh/smart-image-editor/pkg/layout"
	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

//go:embed templates.yaml
var builtinYAML []byte

// ErrUnknownTemplate is returned for keys that are not in the catalog.
var ErrUnknownTemplate = errors.New("catalog: unknown template")

// Device types.
const (
	DevicePC     = "pc"
	DeviceMobile = "mobile"
)

// Template is an immutable banner configuration.
type Template struct {
	Key         string                `yaml:"-" json:"key"`
	BannerType  string                `yaml:"bannerType" json:"bannerType"`
	DeviceType  string                `yaml:"deviceType" json:"deviceType"`
	Name        string                `yaml:"name" json:"name"`
	Width       int                   `yaml:"width" json:"width"`
	Height      int                   `yaml:"height" json:"height"`
	Logo        *layout.LogoSlot      `yaml:"logo,omitempty" json:"logo,omitempty"`
	MultiLogo   *layout.MultiLogoSlot `yaml:"multiLogo,omitempty" json:"multiLogo,omitempty"`
	FixedText   bool                  `yaml:"fixedText" json:"fixedText"`
	Interactive bool                  `yaml:"interactive" json:"interactive"`
	Slots       []Slot                `yaml:"slots" json:"slots"`
}

// Slot is the default content of one text element of a template.
type Slot struct {
	ID              string  `yaml:"id" json:"id"`
	Text            string  `yaml:"text" json:"text"`
	X               float64 `yaml:"x" json:"x"`
	Y               float64 `yaml:"y" json:"y"`
	Width           float64 `yaml:"width" json:"width"`
	Height          float64 `yaml:"height" json:"height"`
	FontSize        float64 `yaml:"fontSize" json:"fontSize"`
	FontWeight      int     `yaml:"fontWeight,omitempty" json:"fontWeight,omitempty"`
	Color           string  `yaml:"color" json:"color"`
	BackgroundColor string  `yaml:"backgroundColor,omitempty" json:"backgroundColor,omitempty"`
}

// Catalog is a read-only set of templates.
type Catalog struct {
	templates map[string]Template
}

type document struct {
	Templates []Template `yaml:"templates"`
}

// Key joins a banner type and device type.
func Key(bannerType, deviceType string) string {
	return bannerType + "-" + deviceType
}

// SplitKey splits a key on its last '-', since banner types may contain
// dashes themselves.
func SplitKey(key string) (bannerType, deviceType string, ok bool) {
	i := strings.LastIndexByte(key, '-')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// Parse decodes and validates a YAML template document.
func Parse(data []byte) ([]Template, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse YAML: %w", err)
	}
	var errs []error
	for i := range doc.Templates {
		t := &doc.Templates[i]
		t.Key = Key(t.BannerType, t.DeviceType)
		if err := t.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return doc.Templates, nil
}

func (t Template) validate() error {
	if t.BannerType == "" || t.DeviceType == "" {
		return fmt.Errorf("catalog: template %q: bannerType and deviceType are required", t.Name)
	}
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("catalog: template %s: size must be positive, got %dx%d", t.Key, t.Width, t.Height)
	}
	if t.Logo != nil && t.MultiLogo != nil {
		return fmt.Errorf("catalog: template %s: logo and multiLogo are exclusive", t.Key)
	}
	if t.MultiLogo != nil && t.MultiLogo.MaxHeight <= 0 {
		return fmt.Errorf("catalog: template %s: multiLogo.maxHeight must be positive", t.Key)
	}
	return nil
}

// New builds a catalog from templates. Later templates replace earlier ones
// with the same key.
func New(templates ...Template) *Catalog {
	c := &Catalog{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		t.Key = Key(t.BannerType, t.DeviceType)
		c.templates[t.Key] = t
	}
	return c
}

// Builtin returns the embedded catalog.
func Builtin() *Catalog {
	ts, err := Parse(builtinYAML)
	if err != nil {
		// The embedded file is validated by tests.
		panic(err)
	}
	return New(ts...)
}

// Load returns the embedded catalog merged with the templates in path.
// An empty path yields the embedded catalog alone.
func Load(path string) (*Catalog, error) {
	c := Builtin()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	ts, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		c.templates[t.Key] = t
	}
	return c, nil
}

// Lookup returns the template for key.
func (c *Catalog) Lookup(key string) (Template, error) {
	t, ok := c.templates[key]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
	}
	return t, nil
}

// Get returns the template for a banner type on a device type.
func (c *Catalog) Get(bannerType, deviceType string) (Template, error) {
	return c.Lookup(Key(bannerType, deviceType))
}

// Keys returns every key in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.templates))
	for k := range c.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Templates returns every template sorted by key.
func (c *Catalog) Templates() []Template {
	keys := c.Keys()
	out := make([]Template, len(keys))
	for i, k := range keys {
		out[i] = c.templates[k]
	}
	return out
}

// Centered-headline ids. They only center on interactive templates.
var headlineIDs = map[string]bool{
	text.IDMainTitle:      true,
	text.IDSubTitle:       true,
	text.IDBottomSubTitle: true,
}

// RoleFor decides the text role of element id on t.
func RoleFor(t Template, id string) text.Role {
	switch {
	case id == text.IDButton:
		return text.RoleButton
	case t.Interactive && headlineIDs[id]:
		return text.RoleHeadline
	default:
		return text.RoleBody
	}
}

// Elements builds the default text elements of t with their roles set.
func (t Template) Elements() []text.Element {
	els := make([]text.Element, len(t.Slots))
	for i, s := range t.Slots {
		els[i] = text.Element{
			ID:              s.ID,
			Role:            RoleFor(t, s.ID),
			Text:            s.Text,
			X:               s.X,
			Y:               s.Y,
			Width:           s.Width,
			Height:          s.Height,
			FontSize:        s.FontSize,
			FontWeight:      s.FontWeight,
			Color:           s.Color,
			BackgroundColor: s.BackgroundColor,
		}
	}
	return els
}

// AssignRoles overwrites the role of every element with the one t decides,
// so callers cannot smuggle a role the template does not grant.
func (t Template) AssignRoles(els []text.Element) []text.Element {
	out := make([]text.Element, len(els))
	for i, e := range els {
		e.Role = RoleFor(t, e.ID)
		out[i] = e
	}
	return out
}

// HasLogo reports whether t accepts any logo.
func (t Template) HasLogo() bool {
	return t.Logo != nil || t.MultiLogo != nil
}
