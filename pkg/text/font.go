package text

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"
)

// FontFiles points at TTF files replacing the bundled Go fonts. Empty paths
// keep the bundled face.
type FontFiles struct {
	Regular string
	Medium  string
	Bold    string
}

// FontBook holds parsed fonts for the three weight buckets. Parsed fonts are
// immutable and safe to share; faces are not, so each Engine creates its own.
type FontBook struct {
	regular *truetype.Font
	medium  *truetype.Font
	bold    *truetype.Font
}

// NewFontBook parses the configured fonts, falling back to the bundled Go
// fonts for every empty path.
func NewFontBook(files FontFiles) (*FontBook, error) {
	regular, err := loadFont(files.Regular, goregular.TTF)
	if err != nil {
		return nil, err
	}
	medium, err := loadFont(files.Medium, gomedium.TTF)
	if err != nil {
		return nil, err
	}
	bold, err := loadFont(files.Bold, gobold.TTF)
	if err != nil {
		return nil, err
	}
	return &FontBook{regular: regular, medium: medium, bold: bold}, nil
}

// DefaultFontBook returns a FontBook built from the bundled Go fonts.
func DefaultFontBook() *FontBook {
	b, err := NewFontBook(FontFiles{})
	if err != nil {
		// The bundled fonts are compiled in; failing to parse them is a
		// build defect.
		panic(err)
	}
	return b
}

func loadFont(path string, fallback []byte) (*truetype.Font, error) {
	data := fallback
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("text: read font: %w", err)
		}
		data = b
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("text: parse font %q: %w", path, err)
	}
	return f, nil
}

// weightBucket maps a CSS weight to 0 (regular), 1 (medium) or 2 (bold).
func weightBucket(weight int) int {
	switch {
	case weight >= 600:
		return 2
	case weight >= 500:
		return 1
	default:
		return 0
	}
}

func (b *FontBook) font(weight int) *truetype.Font {
	switch weightBucket(weight) {
	case 2:
		return b.bold
	case 1:
		return b.medium
	default:
		return b.regular
	}
}

// NewFace returns a new face of size pixels for weight. The caller owns it.
func (b *FontBook) NewFace(size float64, weight int) font.Face {
	return truetype.NewFace(b.font(weight), &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
