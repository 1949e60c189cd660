package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

func TestBuiltin_AllTemplatesForBothDevices(t *testing.T) {
	c := Builtin()
	for _, bt := range []string{"basic-no-logo", "basic-with-logo", "splash", "interactive", "aviation"} {
		for _, dev := range []string{DevicePC, DeviceMobile} {
			tpl, err := c.Get(bt, dev)
			if err != nil {
				t.Errorf("Get(%q, %q): %v", bt, dev, err)
				continue
			}
			if tpl.Key != bt+"-"+dev {
				t.Errorf("unexpected key %q", tpl.Key)
			}
			if len(tpl.Slots) == 0 {
				t.Errorf("%s has no text slots", tpl.Key)
			}
		}
	}
	if got := len(c.Keys()); got != 10 {
		t.Errorf("expected 10 templates, got %d", got)
	}
}

func TestBuiltin_BasicWithLogoPC(t *testing.T) {
	tpl, err := Builtin().Lookup("basic-with-logo-pc")
	if err != nil {
		t.Fatal(err)
	}
	if tpl.Width != 1200 || tpl.Height != 400 {
		t.Errorf("expected 1200x400, got %dx%d", tpl.Width, tpl.Height)
	}
	if tpl.Logo == nil || tpl.Logo.X != 40 || tpl.Logo.Y != 40 {
		t.Errorf("unexpected logo slot %+v", tpl.Logo)
	}
	if tpl.MultiLogo != nil {
		t.Error("basic-with-logo should not have a multi-logo slot")
	}
}

func TestBuiltin_AviationMultiLogo(t *testing.T) {
	tpl, err := Builtin().Get("aviation", DevicePC)
	if err != nil {
		t.Fatal(err)
	}
	m := tpl.MultiLogo
	if m == nil {
		t.Fatal("expected multi-logo slot")
	}
	if m.X != 40 || m.Y != 36 || m.MaxHeight != 48 || m.LogoGap != 16 || m.SeparatorWidth != 4 {
		t.Errorf("unexpected multi-logo slot %+v", m)
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Builtin().Lookup("billboard-tv")
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestSplitKey(t *testing.T) {
	cases := []struct {
		key, bt, dev string
		ok           bool
	}{
		{"basic-with-logo-pc", "basic-with-logo", "pc", true},
		{"splash-mobile", "splash", "mobile", true},
		{"nodash", "", "", false},
		{"-pc", "", "", false},
		{"splash-", "", "", false},
	}
	for _, c := range cases {
		bt, dev, ok := SplitKey(c.key)
		if bt != c.bt || dev != c.dev || ok != c.ok {
			t.Errorf("SplitKey(%q) = %q, %q, %v", c.key, bt, dev, ok)
		}
	}
}

func TestRoleFor(t *testing.T) {
	interactive := Template{Interactive: true}
	basic := Template{}

	if got := RoleFor(basic, text.IDButton); got != text.RoleButton {
		t.Errorf("button on basic: %v", got)
	}
	for _, id := range []string{text.IDMainTitle, text.IDSubTitle, text.IDBottomSubTitle} {
		if got := RoleFor(interactive, id); got != text.RoleHeadline {
			t.Errorf("%s on interactive: %v", id, got)
		}
		if got := RoleFor(basic, id); got != text.RoleBody {
			t.Errorf("%s on basic: %v", id, got)
		}
	}
	if got := RoleFor(interactive, "free-text-1"); got != text.RoleBody {
		t.Errorf("free text on interactive: %v", got)
	}
}

func TestElements_CarryRoles(t *testing.T) {
	tpl, err := Builtin().Get("interactive", DevicePC)
	if err != nil {
		t.Fatal(err)
	}
	els := tpl.Elements()
	if len(els) != len(tpl.Slots) {
		t.Fatalf("expected %d elements, got %d", len(tpl.Slots), len(els))
	}
	for _, e := range els {
		if e.ID == text.IDButton && e.Role != text.RoleButton {
			t.Errorf("button slot has role %v", e.Role)
		}
		if e.ID == text.IDMainTitle && e.Role != text.RoleHeadline {
			t.Errorf("main title has role %v", e.Role)
		}
	}
}

func TestAssignRoles_OverridesCallerRoles(t *testing.T) {
	tpl := Template{}
	out := tpl.AssignRoles([]text.Element{{ID: text.IDMainTitle, Role: text.RoleHeadline}})
	if out[0].Role != text.RoleBody {
		t.Errorf("expected body role on a non-interactive template, got %v", out[0].Role)
	}
}

func TestParse_Validation(t *testing.T) {
	src := `
templates:
  - {bannerType: a, deviceType: pc, width: 0, height: 10}
  - {bannerType: b, deviceType: pc, width: 10, height: 10, logo: {x: 1, y: 1}, multiLogo: {x: 1, y: 1, maxHeight: 10}}
  - {bannerType: c, deviceType: pc, width: 10, height: 10, multiLogo: {x: 1, y: 1}}
  - {bannerType: "", deviceType: pc, width: 10, height: 10}
`
	_, err := Parse([]byte(src))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"a-pc", "b-pc", "c-pc", "required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestLoad_MergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	src := `
templates:
  - bannerType: splash
    deviceType: pc
    name: Custom splash
    width: 1280
    height: 720
  - bannerType: event
    deviceType: tablet
    name: Event
    width: 1024
    height: 768
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	splash, err := c.Lookup("splash-pc")
	if err != nil || splash.Name != "Custom splash" || splash.Width != 1280 {
		t.Errorf("user template should replace builtin: %+v (%v)", splash, err)
	}
	if _, err := c.Get("event", "tablet"); err != nil {
		t.Errorf("expected new template: %v", err)
	}
	if _, err := c.Lookup("aviation-pc"); err != nil {
		t.Errorf("builtins should survive the merge: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing user catalog")
	}
}
