package asset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/webp"
)

// MIME types the editor accepts.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
	MIMESVG  = "image/svg+xml"
)

// ErrUnknownFormat is returned for bytes that are not a supported image.
var ErrUnknownFormat = errors.New("asset: unknown image format")

// svgRasterHeight is the minimum height SVG logos are rasterized at, so
// they stay sharp up to the largest logo height.
const svgRasterHeight = 400

// svgMaxSide bounds the longest side of a rasterized SVG. Larger rasters
// are scaled down to fit.
const svgMaxSide = 4096

// ErrSVGTooLarge is returned for SVGs whose viewBox cannot be mapped to a
// bounded raster.
var ErrSVGTooLarge = errors.New("asset: svg raster too large")

// Sniff returns the MIME type detected from the content of data, or ""
// when it is not recognized.
func Sniff(data []byte) string {
	if isSVG(data) {
		return MIMESVG
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

func isSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n")
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// Decode decodes a JPEG, PNG, GIF, WebP or SVG image. EXIF orientation is
// applied to raster images.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrUnknownFormat
	}
	if isSVG(data) {
		return decodeSVG(data)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnknownFormat
		}
		return nil, fmt.Errorf("asset: decode: %w", err)
	}
	return img, nil
}

func decodeSVG(data []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("asset: decode svg: %w", err)
	}
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	if vw <= 0 || vh <= 0 {
		return nil, fmt.Errorf("asset: decode svg: empty viewBox")
	}
	w, h, err := svgRasterSize(vw, vh)
	if err != nil {
		return nil, err
	}

	icon.SetTarget(0, 0, float64(w), float64(h))
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)
	return rgba, nil
}

// svgRasterSize picks the raster size for a viewBox: at least
// svgRasterHeight tall, at most svgMaxSide on the longest side.
func svgRasterSize(vw, vh float64) (int, int, error) {
	if math.IsInf(vw, 0) || math.IsInf(vh, 0) || math.IsNaN(vw) || math.IsNaN(vh) {
		return 0, 0, fmt.Errorf("%w: viewBox %gx%g", ErrSVGTooLarge, vw, vh)
	}
	scale := 1.0
	if vh < svgRasterHeight {
		scale = svgRasterHeight / vh
	}
	if long := math.Max(vw, vh) * scale; long > svgMaxSide {
		scale = svgMaxSide / math.Max(vw, vh)
	}
	w := min(int(math.Ceil(vw*scale)), svgMaxSide)
	h := min(int(math.Ceil(vh*scale)), svgMaxSide)
	if w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("%w: viewBox %gx%g", ErrSVGTooLarge, vw, vh)
	}
	return w, h, nil
}
