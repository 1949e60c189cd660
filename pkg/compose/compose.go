// Package compose renders banners. A Compositor resolves the assets of a
// request, draws background, logos and text in that order into an
// off-screen buffer, and copies the finished frame onto its visible
// Surface in one operation.
package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fogleman/gg"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
	"github.com/mrt-jh/smart-image-editor/pkg/catalog"
	"github.com/mrt-jh/smart-image-editor/pkg/layout"
	"github.com/mrt-jh/smart-image-editor/pkg/paint"
	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

// ErrClosed is returned by Render after Close.
var ErrClosed = errors.New("compose: compositor closed")

// State is the phase of the render currently drawing.
type State int32

const (
	StateIdle State = iota
	StateDrawingBackground
	StateDrawingLogo
	StateDrawingText
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateDrawingBackground:
		return "drawing-background"
	case StateDrawingLogo:
		return "drawing-logo"
	case StateDrawingText:
		return "drawing-text"
	case StatePublished:
		return "published"
	default:
		return "idle"
	}
}

// Request is the full input of one render.
type Request struct {
	Template   catalog.Template
	Background asset.Ref
	Logo       asset.Ref
	Logos      []asset.Ref
	Elements   []text.Element
	// LogoHeight is the live logo height; zero uses the template default.
	LogoHeight float64
}

// Hooks are notified around the draw phase of every render that reaches
// it. OnDrawComplete always follows OnDrawStart, with published false when
// the frame was discarded as stale.
type Hooks struct {
	OnDrawStart    func(gen uint64)
	OnDrawComplete func(gen uint64, published bool)
}

// Geometry is the resolved layout of a rendered frame.
type Geometry struct {
	Background layout.Rect
	Logos      []layout.Rect
	Separators []layout.Rect
}

// Handle returns the resize handle of the first logo in preview
// coordinates, and false when no logo was drawn.
func (g Geometry) Handle(previewScale float64) (layout.Rect, bool) {
	if len(g.Logos) == 0 {
		return layout.Rect{}, false
	}
	return layout.ResizeHandle(g.Logos[0], previewScale), true
}

// Result describes the outcome of a render.
type Result struct {
	Generation uint64
	// Published is false when a newer render was issued before this one
	// could publish.
	Published bool
	Geometry  Geometry
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithHooks installs draw notifications.
func WithHooks(h Hooks) Option {
	return func(c *Compositor) { c.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) {
		if l != nil {
			c.log = l
		}
	}
}

// Compositor owns the asset caches, the off-screen buffer and the visible
// surface of one editor session. Render is safe for concurrent use; the
// most recently issued render wins.
type Compositor struct {
	assets *asset.Set
	engine *text.Engine
	hooks  Hooks
	log    *slog.Logger

	issued atomic.Uint64
	state  atomic.Int32

	drawMu    sync.Mutex // guards offscreen, engine and closed
	offscreen *image.RGBA
	closed    bool

	visible *Surface
}

// New creates a Compositor drawing assets through loader with fonts from
// book. A nil book uses the bundled fonts.
func New(loader *asset.Loader, book *text.FontBook, opts ...Option) *Compositor {
	c := &Compositor{
		assets:    asset.NewSet(loader),
		log:       slog.Default(),
		offscreen: image.NewRGBA(image.Rect(0, 0, 0, 0)),
		visible:   newSurface(),
	}
	for _, o := range opts {
		o(c)
	}
	c.engine = text.NewEngine(book, c.log)
	return c
}

// Visible returns the visible surface.
func (c *Compositor) Visible() *Surface {
	return c.visible
}

// State returns the current render phase.
func (c *Compositor) State() State {
	return State(c.state.Load())
}

// Assets exposes the asset slots, mainly for inspection.
func (c *Compositor) Assets() *asset.Set {
	return c.assets
}

func (c *Compositor) stale(gen uint64) bool {
	return gen != c.issued.Load()
}

// Render draws req and publishes it unless a newer render was issued in
// the meantime. Missing or undecodable assets are skipped; only an invalid
// template size, cancellation or Close produce an error.
func (c *Compositor) Render(ctx context.Context, req Request) (Result, error) {
	// An invalid request takes no generation, so it never supersedes a
	// render in flight.
	w, h := req.Template.Width, req.Template.Height
	if w <= 0 || h <= 0 {
		return Result{}, fmt.Errorf("compose: invalid canvas size %dx%d", w, h)
	}
	gen := c.issued.Add(1)
	res := Result{Generation: gen}

	// Decoding may block; it happens before the draw lock so a slow asset
	// never holds up a newer render.
	bg := c.assets.Background.Resolve(ctx, req.Background)
	var logo image.Image
	if req.Template.Logo != nil {
		logo = c.assets.Logo.Resolve(ctx, req.Logo)
	}
	var logos []image.Image
	if req.Template.MultiLogo != nil {
		logos = c.assets.Logos.Resolve(ctx, req.Logos)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	if c.closed {
		return res, ErrClosed
	}
	if c.stale(gen) {
		c.log.Debug("compose: render superseded before drawing", "generation", gen)
		return res, nil
	}

	if c.hooks.OnDrawStart != nil {
		c.hooks.OnDrawStart(gen)
	}
	defer func() {
		c.state.Store(int32(StateIdle))
		if c.hooks.OnDrawComplete != nil {
			c.hooks.OnDrawComplete(gen, res.Published)
		}
	}()

	if c.offscreen.Bounds().Dx() != w || c.offscreen.Bounds().Dy() != h {
		c.offscreen = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		draw.Draw(c.offscreen, c.offscreen.Bounds(), image.Transparent, image.Point{}, draw.Src)
	}
	dc := gg.NewContextForRGBA(c.offscreen)

	c.state.Store(int32(StateDrawingBackground))
	if bg != nil {
		res.Geometry.Background = layout.ContainFit(layout.SizeOf(bg), float64(w), float64(h))
		paint.DrawImageRect(dc, bg, res.Geometry.Background)
	}

	c.state.Store(int32(StateDrawingLogo))
	c.drawLogos(dc, req, logo, logos, &res.Geometry)

	c.state.Store(int32(StateDrawingText))
	c.engine.Draw(c.offscreen, req.Template.AssignRoles(req.Elements))

	if c.stale(gen) {
		c.log.Debug("compose: discarding stale frame", "generation", gen, "latest", c.issued.Load())
		return res, nil
	}
	c.visible.publish(c.offscreen, gen)
	c.state.Store(int32(StatePublished))
	res.Published = true
	return res, nil
}

var separatorColor = color.White

func (c *Compositor) drawLogos(dc *gg.Context, req Request, logo image.Image, logos []image.Image, g *Geometry) {
	if slot := req.Template.Logo; slot != nil && logo != nil {
		r := layout.SingleLogo(*slot, layout.SizeOf(logo), req.LogoHeight)
		paint.DrawImageRect(dc, logo, r)
		g.Logos = []layout.Rect{r}
	}

	slot := req.Template.MultiLogo
	if slot == nil {
		return
	}
	decoded := make([]image.Image, 0, len(logos))
	sizes := make([]layout.Size, 0, len(logos))
	for _, img := range logos {
		if img == nil {
			continue
		}
		decoded = append(decoded, img)
		sizes = append(sizes, layout.SizeOf(img))
	}
	row := layout.MultiLogo(*slot, sizes, req.LogoHeight)
	for i, r := range row.Logos {
		paint.DrawImageRect(dc, decoded[i], r)
	}
	for _, r := range row.Separators {
		paint.FillRect(dc, r, separatorColor)
	}
	g.Logos = append(g.Logos, row.Logos...)
	g.Separators = row.Separators
}

// Close releases every asset handle and font face. Renders in progress
// finish first; later renders fail with ErrClosed.
func (c *Compositor) Close() {
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.assets.Close()
	c.engine.Close()
}
