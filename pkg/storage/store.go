// Package storage keeps uploaded images and rendered banners in buckets on
// the local filesystem and serves them back by public URL.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/oklog/ulid/v2"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
)

// MediaPrefix is the URL path the buckets are served under.
const MediaPrefix = "/media/"

// ThumbnailQuality is the WebP quality of generated thumbnails.
const ThumbnailQuality = 85

// ErrNotFound is returned for objects that do not exist.
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidObject is returned for unknown buckets and unsafe object names.
var ErrInvalidObject = errors.New("storage: invalid object")

// Store is a bucketed blob store rooted at a directory. Objects are
// written atomically and addressed by {publicURL}/media/{bucket}/{name}.
type Store struct {
	dir       string
	publicURL string
	limits    Limits
	remote    asset.Fetcher
	log       *slog.Logger
	now       func() time.Time
}

// Options configures a Store.
type Options struct {
	// PublicURL is the externally visible base URL, without trailing slash.
	PublicURL string
	Limits    Limits
	// Remote fetches URLs the store does not own. Nil rejects them.
	Remote asset.Fetcher
	Logger *slog.Logger
}

// New creates the bucket directories under dir and returns a Store.
func New(dir string, opts Options) (*Store, error) {
	for _, b := range Buckets {
		if err := os.MkdirAll(filepath.Join(dir, b), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create bucket %s: %w", b, err)
		}
	}
	s := &Store{
		dir:       dir,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		limits:    opts.Limits,
		remote:    opts.Remote,
		log:       opts.Logger,
		now:       time.Now,
	}
	if s.limits == (Limits{}) {
		s.limits = DefaultLimits
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Limits returns the upload limits in effect.
func (s *Store) Limits() Limits {
	return s.limits
}

// URL returns the public URL of an object.
func (s *Store) URL(bucket, name string) string {
	return s.publicURL + MediaPrefix + bucket + "/" + name
}

// Upload validates b for kind k and stores it under a fresh name of the
// form {kind}-{unixMillis}-{ulid}.{ext}. It returns the public URL.
// Nothing is written when validation fails.
func (s *Store) Upload(ctx context.Context, k Kind, b *asset.Blob) (string, error) {
	mime, err := ValidateUpload(k, b, s.limits)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%d-%s.%s", k, s.now().UnixMilli(), strings.ToLower(ulid.Make().String()), extension(mime))
	if err := s.put(k.Bucket(), name, b.Data); err != nil {
		return "", err
	}
	s.log.Info("storage: stored upload", "kind", k, "bucket", k.Bucket(), "name", name, "bytes", len(b.Data))
	return s.URL(k.Bucket(), name), nil
}

// SaveThumbnail encodes a WebP thumbnail of img and stores it in the
// thumbnails bucket.
func (s *Store) SaveThumbnail(ctx context.Context, img image.Image, width int) (string, error) {
	data, err := Thumbnail(img, width)
	if err != nil {
		return "", err
	}
	return s.Upload(ctx, KindThumbnail, asset.NewBlob("thumbnail.webp", asset.MIMEWebP, data))
}

func (s *Store) put(bucket, name string, data []byte) error {
	dir := filepath.Join(s.dir, bucket)
	if err := atomicWrite(filepath.Join(dir, name), data, dir); err != nil {
		return fmt.Errorf("storage: write %s/%s: %w", bucket, name, err)
	}
	return nil
}

func (s *Store) path(bucket, name string) (string, error) {
	if !knownBucket(bucket) {
		return "", fmt.Errorf("%w: unknown bucket %q", ErrInvalidObject, bucket)
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: bad name %q", ErrInvalidObject, name)
	}
	return filepath.Join(s.dir, bucket, name), nil
}

// Open reads an object.
func (s *Store) Open(bucket, name string) ([]byte, error) {
	p, err := s.path(bucket, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, name)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", bucket, name, err)
	}
	return data, nil
}

// Delete removes an object. Deleting a missing object reports ErrNotFound.
func (s *Store) Delete(bucket, name string) error {
	p, err := s.path(bucket, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, name)
		}
		return fmt.Errorf("storage: delete %s/%s: %w", bucket, name, err)
	}
	return nil
}

// Resolve splits one of the store's public URLs into bucket and name.
func (s *Store) Resolve(url string) (bucket, name string, ok bool) {
	rest, found := strings.CutPrefix(url, s.publicURL+MediaPrefix)
	if !found {
		return "", "", false
	}
	bucket, name, found = strings.Cut(rest, "/")
	if !found || !knownBucket(bucket) {
		return "", "", false
	}
	return bucket, name, true
}

// Fetch implements asset.Fetcher. URLs owned by the store are read from
// disk; any other URL goes to the remote fetcher.
func (s *Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	if bucket, name, ok := s.Resolve(url); ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.Open(bucket, name)
	}
	if s.remote == nil {
		return nil, fmt.Errorf("storage: no remote fetcher for %s", url)
	}
	return s.remote.Fetch(ctx, url)
}

// Thumbnail scales img to width (keeping the aspect ratio) and encodes it
// as WebP.
func Thumbnail(img image.Image, width int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("storage: thumbnail of empty image")
	}
	if width <= 0 {
		return nil, fmt.Errorf("storage: invalid thumbnail width %d", width)
	}
	if width < img.Bounds().Dx() {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("storage: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func knownBucket(b string) bool {
	for _, k := range Buckets {
		if k == b {
			return true
		}
	}
	return false
}

// atomicWrite writes data to a temp file in tmpDir and renames it into
// place, so readers never see a partial object.
func atomicWrite(path string, data []byte, tmpDir string) error {
	tmp, err := os.CreateTemp(tmpDir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	success = true
	return nil
}
