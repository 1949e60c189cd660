package paint

import (
	"image"
	"image/color"
	"testing"

	"github.com/fogleman/gg"

	"github.com/mrt-jh/smart-image-editor/pkg/layout"
)

func TestParseColor_Forms(t *testing.T) {
	cases := []struct {
		in   string
		want color.NRGBA
	}{
		{"#fff", color.NRGBA{255, 255, 255, 255}},
		{"#4F46E5", color.NRGBA{0x4f, 0x46, 0xe5, 255}},
		{"#00000080", color.NRGBA{0, 0, 0, 0x80}},
		{"#f008", color.NRGBA{255, 0, 0, 0x88}},
		{"rgb(10, 20, 30)", color.NRGBA{10, 20, 30, 255}},
		{"rgba(0,0,0,0.15)", color.NRGBA{0, 0, 0, 38}},
		{"  White ", color.NRGBA{255, 255, 255, 255}},
		{"transparent", color.NRGBA{}},
	}
	for _, c := range cases {
		got, err := ParseColor(c.in)
		if err != nil {
			t.Errorf("ParseColor(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseColor(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseColor_Invalid(t *testing.T) {
	for _, in := range []string{"", "#12", "#zzzzzz", "rgb(1,2)", "rgba(1,2,3,4)", "hsl(1,2,3)", "chartreuse-ish"} {
		if _, err := ParseColor(in); err == nil {
			t.Errorf("ParseColor(%q): expected error", in)
		}
	}
}

func TestColorOr_Fallback(t *testing.T) {
	def := color.NRGBA{1, 2, 3, 255}
	if got := ColorOr("nope", def); got != def {
		t.Errorf("expected fallback, got %v", got)
	}
}

func TestLinearGradient_Endpoints(t *testing.T) {
	p := LinearGradient(0, 100, 0, color.NRGBA{255, 0, 0, 255}, color.NRGBA{0, 0, 255, 255})
	r, _, b, _ := p.ColorAt(0, 0).RGBA()
	if r>>8 < 250 || b>>8 > 5 {
		t.Errorf("left edge should be red, got r=%d b=%d", r>>8, b>>8)
	}
	r, _, b, _ = p.ColorAt(100, 0).RGBA()
	if b>>8 < 250 || r>>8 > 5 {
		t.Errorf("right edge should be blue, got r=%d b=%d", r>>8, b>>8)
	}
}

func TestLinearGradient_ZeroWidthIsSolid(t *testing.T) {
	from := color.NRGBA{0, 255, 0, 255}
	p := LinearGradient(50, 50, 0, from, color.Black)
	_, g, _, a := p.ColorAt(50, 0).RGBA()
	if g>>8 != 255 || a>>8 != 255 {
		t.Errorf("expected opaque green, got g=%d a=%d", g>>8, a>>8)
	}
}

func TestPatternImage_At(t *testing.T) {
	img := PatternImage{Pattern: gg.NewSolidPattern(color.White), Rect: image.Rect(0, 0, 4, 4)}
	if img.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}
	if _, _, _, a := img.At(2, 2).RGBA(); a != 0xffff {
		t.Errorf("expected opaque pixel, got alpha %d", a)
	}
}

func TestDrawShadow_DarkensBelowBox(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 200, 100))
	fill := gg.NewContextForRGBA(dst)
	fill.SetColor(color.White)
	fill.Clear()

	DrawShadow(dst, layout.Rect{X: 50, Y: 20, Width: 100, Height: 40}, 20, ButtonShadow)

	under := dst.RGBAAt(100, 62)
	if under.R >= 255 {
		t.Errorf("expected shadow below the box, got %v", under)
	}
	far := dst.RGBAAt(5, 5)
	if far.R != 255 {
		t.Errorf("expected untouched corner, got %v", far)
	}
}

func TestDrawImageRect_ScalesIntoRect(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	dc := gg.NewContextForRGBA(dst)

	src := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	DrawImageRect(dc, src, layout.Rect{X: 20, Y: 30, Width: 40, Height: 20})

	if got := dst.RGBAAt(40, 40); got.A != 255 {
		t.Errorf("expected opaque pixel inside rect, got %v", got)
	}
	if got := dst.RGBAAt(10, 10); got.A != 0 {
		t.Errorf("expected empty pixel outside rect, got %v", got)
	}
}

func TestDrawImageRect_NilImage(t *testing.T) {
	dc := gg.NewContext(10, 10)
	DrawImageRect(dc, nil, layout.Rect{Width: 5, Height: 5})
}
