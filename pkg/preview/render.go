package preview

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/blacktop/go-termimg"
	xdraw "golang.org/x/image/draw"
)

// ErrDisabled is returned by Render when the protocol is ProtocolNone.
var ErrDisabled = errors.New("preview: image rendering is disabled")

// Default pixel size of one terminal cell for graphics protocols.
const (
	defaultCellW = 8
	defaultCellH = 16
)

// Renderer encodes images for one protocol.
type Renderer struct {
	protocol Protocol
	cellW    int
	cellH    int
}

// NewRenderer creates a Renderer for p.
func NewRenderer(p Protocol) *Renderer {
	return &Renderer{protocol: p, cellW: defaultCellW, cellH: defaultCellH}
}

// Protocol returns the active rendering protocol.
func (r *Renderer) Protocol() Protocol {
	return r.protocol
}

// Render converts img to an escape string filling at most cols x rows
// cells, preserving the aspect ratio.
func (r *Renderer) Render(img image.Image, cols, rows int) (string, error) {
	if img == nil {
		return "", errors.New("preview: image is nil")
	}
	switch r.protocol {
	case ProtocolNone:
		return "", ErrDisabled
	case ProtocolKitty:
		return r.renderTermimg(img, termimg.Kitty, cols, rows)
	case ProtocolITerm2:
		return r.renderTermimg(img, termimg.ITerm2, cols, rows)
	case ProtocolSixel:
		return r.renderTermimg(img, termimg.Sixel, cols, rows)
	default:
		// Each halfblock cell shows one pixel column and two pixel rows.
		return renderHalfblocks(ResizeToFit(img, cols, rows*2)), nil
	}
}

func (r *Renderer) renderTermimg(img image.Image, proto termimg.Protocol, cols, rows int) (string, error) {
	resized := ResizeToFit(img, max(cols, 1)*r.cellW, max(rows, 1)*r.cellH)
	ti := termimg.New(resized)
	if ti == nil {
		return "", errors.New("preview: go-termimg could not wrap the image")
	}
	ti.Protocol(proto).Size(cols, rows).Scale(termimg.ScaleFit)
	out, err := ti.Render()
	if err != nil {
		return "", fmt.Errorf("preview: %s: %w", r.protocol, err)
	}
	return out, nil
}

// renderHalfblocks renders using upper-half-block characters with 24-bit
// ANSI color: the top pixel is the foreground, the bottom pixel the
// background. Fully transparent pixels show the terminal default.
func renderHalfblocks(img *image.NRGBA) string {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(w * ((h + 1) / 2) * 40)
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		if y > b.Min.Y {
			sb.WriteString("\x1b[0m\n")
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			top := img.NRGBAAt(x, y)
			hasBottom := y+1 < b.Max.Y
			bot := img.NRGBAAt(x, y+1)
			switch {
			case top.A == 0 && (!hasBottom || bot.A == 0):
				sb.WriteString("\x1b[0m ")
			case top.A == 0:
				fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm\x1b[49m▄", bot.R, bot.G, bot.B)
			case !hasBottom || bot.A == 0:
				fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm\x1b[49m▀", top.R, top.G, top.B)
			default:
				fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
					top.R, top.G, top.B, bot.R, bot.G, bot.B)
			}
		}
	}
	sb.WriteString("\x1b[0m")
	return sb.String()
}

// ResizeToFit scales img to fit within maxW x maxH pixels, preserving the
// aspect ratio. Images that already fit are copied without upscaling.
// Non-positive bounds are treated as 1.
func ResizeToFit(img image.Image, maxW, maxH int) *image.NRGBA {
	maxW, maxH = max(maxW, 1), max(maxH, 1)
	src := img.Bounds()
	srcW, srcH := src.Dx(), src.Dy()
	if srcW <= 0 || srcH <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	if srcW <= maxW && srcH <= maxH {
		dst := image.NewNRGBA(image.Rect(0, 0, srcW, srcH))
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
		return dst
	}

	scale := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	dstW := max(int(math.Round(float64(srcW)*scale)), 1)
	dstH := max(int(math.Round(float64(srcH)*scale)), 1)

	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, src, xdraw.Src, nil)
	return dst
}
