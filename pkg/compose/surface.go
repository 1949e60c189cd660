package compose

import (
	"image"
	"image/draw"
	"io"
	"sync"

	"github.com/mrt-jh/smart-image-editor/pkg/layout"
)

// Surface is the visible frame. It only ever changes by a whole-frame copy
// from the off-screen buffer, so readers never see a partial frame.
type Surface struct {
	mu  sync.RWMutex
	img *image.RGBA
	gen uint64
}

func newSurface() *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, 0, 0))}
}

// publish copies src into the surface in one operation.
func (s *Surface) publish(src *image.RGBA, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img.Bounds() != src.Bounds() {
		s.img = image.NewRGBA(src.Bounds())
	}
	copy(s.img.Pix, src.Pix)
	s.gen = gen
}

// Bounds returns the surface size.
func (s *Surface) Bounds() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img.Bounds()
}

// Generation returns the generation of the render last published.
func (s *Surface) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Snapshot returns a copy of the visible frame.
func (s *Surface) Snapshot() *image.RGBA {
	img, _ := s.Capture()
	return img
}

// Capture returns a copy of the visible frame together with the
// generation that published it.
func (s *Surface) Capture() (*image.RGBA, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := image.NewRGBA(s.img.Bounds())
	draw.Draw(out, out.Bounds(), s.img, s.img.Bounds().Min, draw.Src)
	return out, s.gen
}

// PreviewScale returns the factor that fits the surface in a maxW x maxH
// preview box without upscaling.
func (s *Surface) PreviewScale(maxW, maxH float64) float64 {
	b := s.Bounds()
	return layout.PreviewScale(float64(b.Dx()), float64(b.Dy()), maxW, maxH)
}

// EncodeJPEG writes the visible frame as JPEG.
func (s *Surface) EncodeJPEG(w io.Writer, quality int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return EncodeJPEG(w, s.img, quality)
}
