package compose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
	"github.com/mrt-jh/smart-image-editor/pkg/catalog"
	"github.com/mrt-jh/smart-image-editor/pkg/layout"
	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

var (
	red   = color.NRGBA{255, 0, 0, 255}
	blue  = color.NRGBA{0, 0, 255, 255}
	green = color.NRGBA{0, 255, 0, 255}
)

// makeImage creates a solid w x h image.
func makeImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBlob(t *testing.T, name string, w, h int, c color.Color) *asset.Blob {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, makeImage(w, h, c)); err != nil {
		t.Fatal(err)
	}
	return asset.NewBlob(name, asset.MIMEPNG, buf.Bytes())
}

func blobRef(b *asset.Blob) asset.Ref {
	return asset.Ref{Blob: b}
}

func logoTemplate() catalog.Template {
	return catalog.Template{
		Key:    "test-pc",
		Width:  200,
		Height: 100,
		Logo:   &layout.LogoSlot{X: 10, Y: 10},
	}
}

func multiTemplate() catalog.Template {
	return catalog.Template{
		Key:       "multi-pc",
		Width:     400,
		Height:    100,
		MultiLogo: &layout.MultiLogoSlot{X: 0, Y: 0, MaxHeight: 50, LogoGap: 16, SeparatorWidth: 4},
	}
}

func newCompositor(fetcher asset.Fetcher, opts ...Option) (*Compositor, *asset.Loader) {
	loader := asset.NewLoader(nil, fetcher, nil)
	return New(loader, text.DefaultFontBook(), opts...), loader
}

func pixel(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func near(a color.RGBA, b color.NRGBA) bool {
	d := func(x, y uint8) bool {
		if x > y {
			return x-y <= 8
		}
		return y-x <= 8
	}
	return d(a.R, b.R) && d(a.G, b.G) && d(a.B, b.B) && d(a.A, b.A)
}

// --- Paint order ---

func TestRender_PaintOrder(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	req := Request{
		Template:   logoTemplate(),
		Background: blobRef(pngBlob(t, "bg.png", 200, 100, red)),
		Logo:       blobRef(pngBlob(t, "logo.png", 100, 50, blue)),
		LogoHeight: 40,
	}
	res, err := c.Render(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Published {
		t.Fatal("expected frame to be published")
	}
	frame := c.Visible().Snapshot()

	if p := pixel(frame, 5, 5); !near(p, red) {
		t.Errorf("background pixel = %v, want red", p)
	}
	if p := pixel(frame, 50, 30); !near(p, blue) {
		t.Errorf("logo pixel = %v, want blue", p)
	}
	want := layout.Rect{X: 10, Y: 10, Width: 80, Height: 40}
	if len(res.Geometry.Logos) != 1 || res.Geometry.Logos[0] != want {
		t.Errorf("logo geometry = %+v, want %+v", res.Geometry.Logos, want)
	}

	// Text drawn over the logo must stay visible on top of it.
	req.Elements = []text.Element{{
		ID: "sub-title", Text: "MMM", X: 12, Y: 8,
		Width: 120, Height: 48, FontSize: 40, FontWeight: 700, Color: "#00ff00",
	}}
	if _, err := c.Render(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	frame = c.Visible().Snapshot()
	found := false
	for y := 10; y < 50 && !found; y++ {
		for x := 10; x < 90; x++ {
			if near(pixel(frame, x, y), green) {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("expected text pixels on top of the logo")
	}
}

func TestRender_NoBackgroundLeavesTransparent(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	if _, err := c.Render(context.Background(), Request{Template: logoTemplate()}); err != nil {
		t.Fatal(err)
	}
	frame := c.Visible().Snapshot()
	if frame.Bounds().Dx() != 200 || frame.Bounds().Dy() != 100 {
		t.Fatalf("bounds = %v", frame.Bounds())
	}
	if p := pixel(frame, 100, 50); p.A != 0 {
		t.Errorf("expected transparent pixel, got %v", p)
	}
}

func TestRender_BackgroundContainFit(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	tmpl := catalog.Template{Key: "wide-pc", Width: 1200, Height: 400}
	res, err := c.Render(context.Background(), Request{
		Template:   tmpl,
		Background: blobRef(pngBlob(t, "bg.png", 2400, 600, red)),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := layout.Rect{X: 0, Y: 50, Width: 1200, Height: 300}
	if res.Geometry.Background != want {
		t.Errorf("background = %+v, want %+v", res.Geometry.Background, want)
	}
	frame := c.Visible().Snapshot()
	if p := pixel(frame, 600, 20); p.A != 0 {
		t.Errorf("letterbox pixel = %v, want transparent", p)
	}
	if p := pixel(frame, 600, 200); !near(p, red) {
		t.Errorf("image pixel = %v, want red", p)
	}
}

func TestRender_InvalidSize(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	if _, err := c.Render(context.Background(), Request{Template: catalog.Template{Key: "x"}}); err == nil {
		t.Error("expected error for zero canvas size")
	}
}

// --- Generations ---

func TestRender_InvalidSizeKeepsInFlightRender(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := asset.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		close(entered)
		<-release
		var buf bytes.Buffer
		_ = png.Encode(&buf, makeImage(200, 100, red))
		return buf.Bytes(), nil
	})
	c, _ := newCompositor(fetcher)
	defer c.Close()

	type outcome struct {
		res Result
		err error
	}
	slow := make(chan outcome, 1)
	go func() {
		res, err := c.Render(context.Background(), Request{
			Template:   logoTemplate(),
			Background: asset.Ref{URL: "https://cdn.example/slow.png"},
		})
		slow <- outcome{res, err}
	}()
	<-entered

	bad, err := c.Render(context.Background(), Request{Template: catalog.Template{Key: "x"}})
	if err == nil {
		t.Fatal("expected error for zero canvas size")
	}
	if bad.Generation != 0 {
		t.Errorf("invalid render took generation %d", bad.Generation)
	}
	close(release)

	o := <-slow
	if o.err != nil {
		t.Fatal(o.err)
	}
	if !o.res.Published || o.res.Generation != 1 {
		t.Errorf("in-flight render = %+v, want published generation 1", o.res)
	}
	if got := c.Visible().Generation(); got != 1 {
		t.Errorf("visible generation = %d, want 1", got)
	}
}


func TestRender_StaleBeforeDraw(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := asset.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		close(entered)
		<-release
		var buf bytes.Buffer
		_ = png.Encode(&buf, makeImage(200, 100, red))
		return buf.Bytes(), nil
	})

	var mu sync.Mutex
	var starts []uint64
	c, _ := newCompositor(fetcher, WithHooks(Hooks{
		OnDrawStart: func(gen uint64) {
			mu.Lock()
			starts = append(starts, gen)
			mu.Unlock()
		},
	}))
	defer c.Close()

	type outcome struct {
		res Result
		err error
	}
	slow := make(chan outcome, 1)
	go func() {
		res, err := c.Render(context.Background(), Request{
			Template:   logoTemplate(),
			Background: asset.Ref{URL: "https://cdn.example/slow.png"},
		})
		slow <- outcome{res, err}
	}()
	<-entered

	fast, err := c.Render(context.Background(), Request{Template: logoTemplate()})
	if err != nil {
		t.Fatal(err)
	}
	if !fast.Published || fast.Generation != 2 {
		t.Fatalf("fast render = %+v, want published generation 2", fast)
	}
	close(release)

	o := <-slow
	if o.err != nil {
		t.Fatal(o.err)
	}
	if o.res.Published {
		t.Error("stale render must not publish")
	}
	if got := c.Visible().Generation(); got != 2 {
		t.Errorf("visible generation = %d, want 2", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 1 || starts[0] != 2 {
		t.Errorf("draw starts = %v, want [2]", starts)
	}
}

func TestRender_StaleDuringDraw(t *testing.T) {
	type event struct {
		start     bool
		gen       uint64
		published bool
	}
	var mu sync.Mutex
	var events []event
	var c *Compositor
	done := make(chan Result, 1)

	c, _ = newCompositor(nil, WithHooks(Hooks{
		OnDrawStart: func(gen uint64) {
			mu.Lock()
			events = append(events, event{start: true, gen: gen})
			mu.Unlock()
			if gen != 1 {
				return
			}
			go func() {
				res, _ := c.Render(context.Background(), Request{Template: logoTemplate()})
				done <- res
			}()
			for c.issued.Load() < 2 {
				runtime.Gosched()
			}
		},
		OnDrawComplete: func(gen uint64, published bool) {
			mu.Lock()
			events = append(events, event{gen: gen, published: published})
			mu.Unlock()
		},
	}))
	defer c.Close()

	first, err := c.Render(context.Background(), Request{Template: logoTemplate()})
	if err != nil {
		t.Fatal(err)
	}
	if first.Published {
		t.Error("superseded render must not publish")
	}
	second := <-done
	if !second.Published {
		t.Error("latest render should publish")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []event{
		{start: true, gen: 1},
		{gen: 1, published: false},
		{start: true, gen: 2},
		{gen: 2, published: true},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestRender_HooksPaired(t *testing.T) {
	var starts, completes int
	c, _ := newCompositor(nil, WithHooks(Hooks{
		OnDrawStart:    func(uint64) { starts++ },
		OnDrawComplete: func(uint64, bool) { completes++ },
	}))
	defer c.Close()

	for i := 0; i < 5; i++ {
		if _, err := c.Render(context.Background(), Request{Template: logoTemplate()}); err != nil {
			t.Fatal(err)
		}
	}
	if starts != 5 || completes != 5 {
		t.Errorf("starts=%d completes=%d, want 5 each", starts, completes)
	}
}

// --- Caching ---

func TestRender_Idempotent(t *testing.T) {
	c, loader := newCompositor(nil)
	defer c.Close()

	req := Request{
		Template:   logoTemplate(),
		Background: blobRef(pngBlob(t, "bg.png", 300, 150, red)),
		Logo:       blobRef(pngBlob(t, "logo.png", 60, 30, blue)),
		Elements: []text.Element{{
			ID: "main-title", Text: "Hello", X: 20, Y: 60,
			Width: 160, Height: 30, FontSize: 20, Color: "#ffffff",
		}},
	}
	if _, err := c.Render(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	first := c.Visible().Snapshot()
	decodes := loader.Decodes()
	if decodes != 2 {
		t.Errorf("decodes = %d, want 2", decodes)
	}

	if _, err := c.Render(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := loader.Decodes(); got != decodes {
		t.Errorf("re-render decoded again: %d -> %d", decodes, got)
	}
	if !bytes.Equal(first.Pix, c.Visible().Snapshot().Pix) {
		t.Error("identical requests produced different frames")
	}
}

func TestRender_LogoIgnoredWithoutSlot(t *testing.T) {
	c, loader := newCompositor(nil)
	defer c.Close()

	req := Request{
		Template: catalog.Template{Key: "plain-pc", Width: 100, Height: 50},
		Logo:     blobRef(pngBlob(t, "logo.png", 60, 30, blue)),
	}
	res, err := c.Render(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Geometry.Logos) != 0 || loader.Decodes() != 0 {
		t.Errorf("logo should not be decoded or drawn without a slot")
	}
}

func TestRender_FailedLogoSkipped(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	bad := asset.NewBlob("broken.png", asset.MIMEPNG, []byte("not an image"))
	req := Request{
		Template: multiTemplate(),
		Logos: []asset.Ref{
			blobRef(pngBlob(t, "a.png", 100, 50, blue)),
			blobRef(bad),
			blobRef(pngBlob(t, "b.png", 50, 50, red)),
		},
	}
	res, err := c.Render(context.Background(), req)
	if err != nil {
		t.Fatalf("a failed decode must not fail the render: %v", err)
	}
	if len(res.Geometry.Logos) != 2 {
		t.Fatalf("logos = %d, want 2", len(res.Geometry.Logos))
	}
	if len(res.Geometry.Separators) != 1 {
		t.Fatalf("separators = %d, want 1", len(res.Geometry.Separators))
	}
	if got := res.Geometry.Logos[1].X; got != 116 {
		t.Errorf("second logo x = %v, want 116", got)
	}
	sep := res.Geometry.Separators[0]
	if sep != (layout.Rect{X: 106, Y: 5, Width: 4, Height: 40}) {
		t.Errorf("separator = %+v", sep)
	}
	frame := c.Visible().Snapshot()
	if p := pixel(frame, 107, 25); !near(p, color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("separator pixel = %v, want white", p)
	}
}

func TestGeometry_Handle(t *testing.T) {
	g := Geometry{Logos: []layout.Rect{{X: 10, Y: 10, Width: 80, Height: 40}}}
	h, ok := g.Handle(0.5)
	if !ok {
		t.Fatal("expected a handle")
	}
	if h != (layout.Rect{X: 37, Y: 17, Width: 16, Height: 16}) {
		t.Errorf("handle = %+v", h)
	}
	if _, ok := (Geometry{}).Handle(1); ok {
		t.Error("no logos should mean no handle")
	}
}

// --- Surface ---

func TestSurface_NeverPartial(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	tmpl := catalog.Template{Key: "swap-pc", Width: 64, Height: 32}
	reds := blobRef(pngBlob(t, "red.png", 64, 32, red))
	blues := blobRef(pngBlob(t, "blue.png", 64, 32, blue))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ref := reds
				if (i+j)%2 == 1 {
					ref = blues
				}
				if _, err := c.Render(ctx, Request{Template: tmpl, Background: ref}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			frame := c.Visible().Snapshot()
			if frame.Bounds().Empty() {
				continue
			}
			first := pixel(frame, 0, 0)
			for y := 0; y < 32; y++ {
				for x := 0; x < 64; x++ {
					if pixel(frame, x, y) != first {
						t.Errorf("partial frame: (%d,%d)=%v, (0,0)=%v", x, y, pixel(frame, x, y), first)
						return
					}
				}
			}
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()
}

func TestSurface_EncodeJPEG(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	if _, err := c.Render(context.Background(), Request{
		Template:   logoTemplate(),
		Background: blobRef(pngBlob(t, "bg.png", 200, 100, red)),
	}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := c.Visible().EncodeJPEG(&buf, DefaultJPEGQuality); err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Errorf("jpeg bounds = %v", img.Bounds())
	}
	r, g, b, _ := img.At(100, 50).RGBA()
	if r>>8 < 230 || g>>8 > 30 || b>>8 > 30 {
		t.Errorf("jpeg center = (%d,%d,%d), want red", r>>8, g>>8, b>>8)
	}
}

func TestSurface_PreviewScale(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	tmpl := catalog.Template{Key: "big-pc", Width: 1200, Height: 400}
	if _, err := c.Render(context.Background(), Request{Template: tmpl}); err != nil {
		t.Fatal(err)
	}
	if got := c.Visible().PreviewScale(600, 600); got != 0.5 {
		t.Errorf("preview scale = %v, want 0.5", got)
	}
}

// --- Lifecycle ---

func TestClose_ReleasesHandles(t *testing.T) {
	c, loader := newCompositor(nil)

	req := Request{
		Template:   logoTemplate(),
		Background: blobRef(pngBlob(t, "bg.png", 200, 100, red)),
		Logo:       blobRef(pngBlob(t, "logo.png", 60, 30, blue)),
	}
	if _, err := c.Render(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if live := loader.Registry().Live(); live != 2 {
		t.Errorf("live handles = %d, want 2", live)
	}
	c.Close()
	c.Close()
	if live := loader.Registry().Live(); live != 0 {
		t.Errorf("live handles after close = %d, want 0", live)
	}
	created, released := loader.Registry().Stats()
	if created != released {
		t.Errorf("created=%d released=%d", created, released)
	}
	if _, err := c.Render(context.Background(), req); !errors.Is(err, ErrClosed) {
		t.Errorf("render after close = %v, want ErrClosed", err)
	}
}

func TestRender_CanceledContext(t *testing.T) {
	c, _ := newCompositor(nil)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Render(ctx, Request{Template: logoTemplate()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateIdle:              "idle",
		StateDrawingBackground: "drawing-background",
		StateDrawingLogo:       "drawing-logo",
		StateDrawingText:       "drawing-text",
		StatePublished:         "published",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

// --- Pool ---

func TestPool_Render(t *testing.T) {
	loader := asset.NewLoader(nil, nil, nil)
	p := NewPool(loader, text.DefaultFontBook(), 2, nil)
	defer p.Close()

	bg := blobRef(pngBlob(t, "bg.png", 200, 100, red))
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := p.Render(context.Background(), Request{Template: logoTemplate(), Background: bg})
			if err != nil {
				t.Error(err)
				return
			}
			if !f.Result.Published {
				t.Error("pool frame not published")
			}
			if f.Image.Bounds().Dx() != 200 || !near(pixel(f.Image, 100, 50), red) {
				t.Errorf("unexpected frame %v", f.Image.Bounds())
			}
		}()
	}
	wg.Wait()
}

func TestPool_RenderError(t *testing.T) {
	p := NewPool(asset.NewLoader(nil, nil, nil), nil, 1, nil)
	defer p.Close()

	if _, err := p.Render(context.Background(), Request{}); err == nil {
		t.Error("expected error for empty template")
	}
}

func TestPool_Closed(t *testing.T) {
	p := NewPool(asset.NewLoader(nil, nil, nil), nil, 1, nil)
	p.Close()
	p.Close()

	var got error
	p.RenderAsync(context.Background(), Request{Template: logoTemplate()}, func(_ Frame, err error) {
		got = err
	})
	if !errors.Is(got, ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", got)
	}
}

func TestPool_CancelSuppressesCallback(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := asset.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		close(entered)
		<-release
		return nil, errors.New("unavailable")
	})
	p := NewPool(asset.NewLoader(nil, fetcher, nil), nil, 1, nil)
	defer p.Close()

	called := make(chan struct{}, 1)
	cancel := p.RenderAsync(context.Background(), Request{
		Template:   logoTemplate(),
		Background: asset.Ref{URL: "https://cdn.example/slow.png"},
	}, func(Frame, error) {
		called <- struct{}{}
	})
	<-entered
	cancel()
	cancel()
	close(release)

	// The single worker only takes this job after the first one finished.
	if _, err := p.Render(context.Background(), Request{Template: logoTemplate()}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-called:
		t.Error("callback ran after cancel")
	default:
	}
}
