package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
)

// Sentinel validation failures, wrapped by *ValidationError.
var (
	ErrTooLarge        = errors.New("storage: file too large")
	ErrUnsupportedType = errors.New("storage: unsupported file type")
	ErrEmpty           = errors.New("storage: empty file")
)

// Kind is what an upload is for. It selects the bucket and the limits.
type Kind string

const (
	KindBackground Kind = "background"
	KindFinal      Kind = "final"
	KindLogo       Kind = "logo"
	KindThumbnail  Kind = "thumbnail"
)

// Bucket names.
const (
	BucketBannerImages = "banner-images"
	BucketFinalBanners = "final-banners"
	BucketLogos        = "logos"
	BucketThumbnails   = "thumbnails"
)

// Buckets lists every bucket a Store manages.
var Buckets = []string{BucketBannerImages, BucketFinalBanners, BucketLogos, BucketThumbnails}

// ParseKind converts an upload kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBackground, KindFinal, KindLogo, KindThumbnail:
		return k, nil
	case "":
		return KindBackground, nil
	default:
		return "", fmt.Errorf("storage: unknown upload kind %q", s)
	}
}

// Bucket returns the bucket uploads of kind k are stored in.
func (k Kind) Bucket() string {
	switch k {
	case KindFinal:
		return BucketFinalBanners
	case KindLogo:
		return BucketLogos
	case KindThumbnail:
		return BucketThumbnails
	default:
		return BucketBannerImages
	}
}

// Limits are the per-kind upload size caps in bytes.
type Limits struct {
	Image int64 // backgrounds, final banners and thumbnails
	Logo  int64
}

// DefaultLimits allows 10MB images and 5MB logos.
var DefaultLimits = Limits{Image: 10 << 20, Logo: 5 << 20}

// LimitsMB builds Limits from megabyte values, keeping defaults for
// non-positive ones.
func LimitsMB(imageMB, logoMB int) Limits {
	l := DefaultLimits
	if imageMB > 0 {
		l.Image = int64(imageMB) << 20
	}
	if logoMB > 0 {
		l.Logo = int64(logoMB) << 20
	}
	return l
}

func (l Limits) max(k Kind) int64 {
	if k == KindLogo {
		return l.Logo
	}
	return l.Image
}

var imageTypes = map[string]bool{
	asset.MIMEJPEG: true,
	asset.MIMEPNG:  true,
	asset.MIMEWebP: true,
}

func allowed(k Kind, mime string) bool {
	if k == KindLogo && mime == asset.MIMESVG {
		return true
	}
	return imageTypes[mime]
}

func allowedNames(k Kind) string {
	if k == KindLogo {
		return "JPG, PNG, WebP or SVG"
	}
	return "JPG, PNG or WebP"
}

// ValidationError describes a rejected upload in words a user can act on.
type ValidationError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateUpload checks the size and the sniffed content type of b against
// the rules for k and returns the detected MIME type. The declared content
// type is not trusted.
func ValidateUpload(k Kind, b *asset.Blob, limits Limits) (string, error) {
	if b == nil || len(b.Data) == 0 {
		return "", &ValidationError{Kind: k, Message: "file is empty", Err: ErrEmpty}
	}
	size := int64(len(b.Data))
	if maxSize := limits.max(k); size > maxSize {
		return "", &ValidationError{
			Kind: k,
			Message: fmt.Sprintf("%s file is too large: at most %dMB allowed (got %.2fMB)",
				k, maxSize>>20, float64(size)/(1<<20)),
			Err: ErrTooLarge,
		}
	}
	mime := asset.Sniff(b.Data)
	if !allowed(k, mime) {
		got := mime
		if got == "" {
			got = normalizeMIME(b.ContentType)
		}
		if got == "" {
			got = "unknown"
		}
		return "", &ValidationError{
			Kind:    k,
			Message: fmt.Sprintf("unsupported %s file type %s: only %s files are accepted", k, got, allowedNames(k)),
			Err:     ErrUnsupportedType,
		}
	}
	return mime, nil
}

func normalizeMIME(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return asset.MIMEJPEG
	}
	return ct
}

func extension(mime string) string {
	switch mime {
	case asset.MIMEJPEG:
		return "jpg"
	case asset.MIMEPNG:
		return "png"
	case asset.MIMEWebP:
		return "webp"
	case asset.MIMESVG:
		return "svg"
	default:
		return "bin"
	}
}
