package compose

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is the export quality of finished banners.
const DefaultJPEGQuality = 90

// EncodeJPEG writes img as JPEG. A quality outside [1,100] uses
// DefaultJPEGQuality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("compose: encode jpeg: %w", err)
	}
	return nil
}
