package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// fileName returns the first 16 hex characters of the SHA-256 of key, a
// filesystem-safe name for any key.
func fileName(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:8])
}

// RenderKey identifies an encoded frame: the template, the exact assets
// (by fingerprint), the text elements, the logo height and the encoding.
type RenderKey struct {
	Template   string   `json:"t"`
	Background string   `json:"bg,omitempty"`
	Logo       string   `json:"logo,omitempty"`
	Logos      []string `json:"logos,omitempty"`
	Elements   any      `json:"els,omitempty"`
	LogoHeight float64  `json:"lh,omitempty"`
	Format     string   `json:"f"`
	Quality    int      `json:"q,omitempty"`
}

// String returns the hex SHA-256 of the key's JSON encoding. Identical
// inputs always yield the same string.
func (k RenderKey) String() string {
	s, err := k.Hash()
	if err != nil {
		return ""
	}
	return s
}

// Hash is String with the encoding error exposed.
func (k RenderKey) Hash() (string, error) {
	data, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("cache: encode render key: %w", err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}
