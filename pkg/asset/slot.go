package asset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// maxParallelDecodes bounds the goroutines a ListSlot decodes with.
const maxParallelDecodes = 4

// Loader turns references into decoded images. Blobs are read through a
// transient handle, URLs through the Fetcher.
type Loader struct {
	registry *Registry
	fetcher  Fetcher
	log      *slog.Logger
	decodes  atomic.Uint64
}

// NewLoader creates a Loader. A nil registry gets a fresh one and a nil
// logger uses slog.Default().
func NewLoader(reg *Registry, fetcher Fetcher, logger *slog.Logger) *Loader {
	if reg == nil {
		reg = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{registry: reg, fetcher: fetcher, log: logger}
}

// Registry returns the handle registry.
func (l *Loader) Registry() *Registry {
	return l.registry
}

// Decodes returns how many decodes the loader has started.
func (l *Loader) Decodes() uint64 {
	return l.decodes.Load()
}

func (l *Loader) load(ctx context.Context, ref Ref, h *Handle) (image.Image, error) {
	var data []byte
	if h != nil {
		b, ok := l.registry.Open(h.ID())
		if !ok {
			return nil, fmt.Errorf("asset: handle %s is released", h.ID())
		}
		data = b
	} else {
		if l.fetcher == nil {
			return nil, errors.New("asset: no fetcher configured")
		}
		b, err := l.fetcher.Fetch(ctx, ref.URL)
		if err != nil {
			return nil, err
		}
		data = b
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.decodes.Add(1)
	return Decode(data)
}

// Entry is a cached decode. A nil Image records a failed decode, so the
// same fingerprint is not decoded again.
type Entry struct {
	Fingerprint string
	Handle      *Handle
	Image       image.Image
}

// Slot caches the decoded image of one asset reference.
type Slot struct {
	name   string
	loader *Loader

	mu     sync.Mutex
	entry  *Entry
	closed bool
}

// NewSlot creates an empty slot. The name only appears in logs.
func NewSlot(name string, l *Loader) *Slot {
	return &Slot{name: name, loader: l}
}

// Resolve returns the decoded image for ref, or nil when there is nothing
// to draw. A matching fingerprint returns the cached image without
// decoding. Otherwise the previous entry is released and ref is decoded
// while the slot lock is held, so concurrent callers never decode the same
// fingerprint twice. An empty ref leaves the cache untouched.
func (s *Slot) Resolve(ctx context.Context, ref Ref) image.Image {
	if ref.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	fp := ref.Fingerprint()
	if s.entry != nil && s.entry.Fingerprint == fp {
		return s.entry.Image
	}
	if s.entry != nil {
		s.entry.Handle.Release()
		s.entry = nil
	}

	var h *Handle
	if ref.IsBlob() {
		h = s.loader.registry.Create(ref.Blob)
	}
	img, err := s.loader.load(ctx, ref, h)
	if err != nil {
		h.Release()
		if ctx.Err() != nil {
			return nil
		}
		s.loader.log.Warn("asset: decode failed", "slot", s.name, "fingerprint", fp, "error", err)
		s.entry = &Entry{Fingerprint: fp}
		return nil
	}
	s.entry = &Entry{Fingerprint: fp, Handle: h, Image: img}
	return img
}

// Fingerprint returns the fingerprint currently cached, or "".
func (s *Slot) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return ""
	}
	return s.entry.Fingerprint
}

// Close releases the cached entry. Resolve returns nil afterwards.
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != nil {
		s.entry.Handle.Release()
		s.entry = nil
	}
	s.closed = true
}

// ListSlot caches an ordered list of decoded images. Any change in length
// or in a positional fingerprint invalidates the whole list.
type ListSlot struct {
	name   string
	loader *Loader

	mu      sync.Mutex
	entries []Entry
	closed  bool
}

// NewListSlot creates an empty list slot.
func NewListSlot(name string, l *Loader) *ListSlot {
	return &ListSlot{name: name, loader: l}
}

func (s *ListSlot) matches(refs []Ref) bool {
	if len(s.entries) != len(refs) {
		return false
	}
	for i, r := range refs {
		if s.entries[i].Fingerprint != r.Fingerprint() {
			return false
		}
	}
	return true
}

func (s *ListSlot) images() []image.Image {
	imgs := make([]image.Image, len(s.entries))
	for i, e := range s.entries {
		imgs[i] = e.Image
	}
	return imgs
}

func (s *ListSlot) releaseLocked() {
	for i := range s.entries {
		s.entries[i].Handle.Release()
	}
	s.entries = nil
}

// Resolve returns one image per ref, in order; failed decodes are nil.
// Decodes run in parallel. An empty list leaves the cache untouched.
func (s *ListSlot) Resolve(ctx context.Context, refs []Ref) []image.Image {
	if len(refs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.matches(refs) {
		return s.images()
	}
	s.releaseLocked()

	entries := make([]Entry, len(refs))
	for i, r := range refs {
		entries[i].Fingerprint = r.Fingerprint()
		if r.IsBlob() {
			entries[i].Handle = s.loader.registry.Create(r.Blob)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDecodes)
	for i := range refs {
		g.Go(func() error {
			img, err := s.loader.load(gctx, refs[i], entries[i].Handle)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.loader.log.Warn("asset: decode failed", "slot", s.name, "index", i,
					"fingerprint", entries[i].Fingerprint, "error", err)
				return nil
			}
			entries[i].Image = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i := range entries {
			entries[i].Handle.Release()
		}
		return nil
	}

	for i := range entries {
		if entries[i].Image == nil {
			entries[i].Handle.Release()
			entries[i].Handle = nil
		}
	}
	s.entries = entries
	return s.images()
}

// Fingerprints returns the cached fingerprints in order.
func (s *ListSlot) Fingerprints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	fps := make([]string, len(s.entries))
	for i, e := range s.entries {
		fps[i] = e.Fingerprint
	}
	return fps
}

// Close releases every cached entry. Resolve returns nil afterwards.
func (s *ListSlot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.closed = true
}

// Set groups the three asset slots of one banner editor session.
type Set struct {
	Background *Slot
	Logo       *Slot
	Logos      *ListSlot
}

// NewSet creates the background, logo and multi-logo slots over l.
func NewSet(l *Loader) *Set {
	return &Set{
		Background: NewSlot("background", l),
		Logo:       NewSlot("logo", l),
		Logos:      NewListSlot("logos", l),
	}
}

// Close releases every handle held by the set.
func (s *Set) Close() {
	s.Background.Close()
	s.Logo.Close()
	s.Logos.Close()
}
