package asset

import (
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// HandlePrefix starts every transient handle id.
const HandlePrefix = "blob:"

// Registry issues transient handles that make local blobs addressable
// while they are being decoded and displayed. Every handle must be released
// exactly once.
type Registry struct {
	mu   sync.Mutex
	live map[string]*Blob

	created  atomic.Uint64
	released atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*Blob)}
}

// Handle is a transient reference to a registered blob.
type Handle struct {
	id       string
	reg      *Registry
	released atomic.Bool
}

// Create registers b and returns its handle.
func (r *Registry) Create(b *Blob) *Handle {
	id := HandlePrefix + ulid.Make().String()
	r.mu.Lock()
	r.live[id] = b
	r.mu.Unlock()
	r.created.Add(1)
	return &Handle{id: id, reg: r}
}

// Open returns the bytes behind a live handle id.
func (r *Registry) Open(id string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.live[id]
	if !ok {
		return nil, false
	}
	return b.Data, true
}

// Live returns the number of handles not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Stats returns how many handles were created and released.
func (r *Registry) Stats() (created, released uint64) {
	return r.created.Load(), r.released.Load()
}

// ID returns the handle id.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// Release unregisters the handle. Only the first call has an effect; it
// returns false on every later call. Releasing nil is a no-op.
func (h *Handle) Release() bool {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return false
	}
	h.reg.mu.Lock()
	delete(h.reg.live, h.id)
	h.reg.mu.Unlock()
	h.reg.released.Add(1)
	return true
}
