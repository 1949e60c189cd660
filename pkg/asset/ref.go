// Package asset owns the decoded images a banner is composed from. Each
// slot caches one decoded image (or an ordered list of them) keyed by a
// content fingerprint and only decodes again when the fingerprint changes.
package asset

import "strconv"

// Blob is a locally chosen file that has not been persisted yet.
type Blob struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

// NewBlob wraps data, setting Size from its length.
func NewBlob(name, contentType string, data []byte) *Blob {
	return &Blob{Name: name, Size: int64(len(data)), ContentType: contentType, Data: data}
}

// Ref points at an image: a local blob or a persisted URL. Exactly one is
// authoritative; the blob wins when both are set.
type Ref struct {
	Blob *Blob
	URL  string
}

// Pick returns the authoritative reference among an uploaded blob and an
// existing URL.
func Pick(blob *Blob, url string) Ref {
	if blob != nil {
		return Ref{Blob: blob}
	}
	return Ref{URL: url}
}

// PickList returns the uploaded blobs when there are any, otherwise the
// existing URLs.
func PickList(blobs []*Blob, urls []string) []Ref {
	if len(blobs) > 0 {
		refs := make([]Ref, 0, len(blobs))
		for _, b := range blobs {
			if b != nil {
				refs = append(refs, Ref{Blob: b})
			}
		}
		return refs
	}
	refs := make([]Ref, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			refs = append(refs, Ref{URL: u})
		}
	}
	return refs
}

// Empty reports whether r points at nothing.
func (r Ref) Empty() bool {
	return r.Blob == nil && r.URL == ""
}

// IsBlob reports whether r is backed by a local blob.
func (r Ref) IsBlob() bool {
	return r.Blob != nil
}

// Fingerprint identifies the content r points at: the blob name followed by
// its size, or the URL itself.
func (r Ref) Fingerprint() string {
	if r.Blob != nil {
		return r.Blob.Name + strconv.FormatInt(r.Blob.Size, 10)
	}
	return r.URL
}

// Fingerprints returns the fingerprint of every ref in order.
func Fingerprints(refs []Ref) []string {
	fps := make([]string, len(refs))
	for i, r := range refs {
		fps[i] = r.Fingerprint()
	}
	return fps
}
