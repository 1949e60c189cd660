package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts ...func(*Config)) *Store {
	t.Helper()
	cfg := Config{
		Dir:           t.TempDir(),
		MaxSizeMB:     50,
		TTL:           time.Hour,
		SweepInterval: time.Hour, // long interval so tests control sweeping
	}
	for _, o := range opts {
		o(&cfg)
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func jpegFrame(data string) Frame {
	return Frame{Data: []byte(data), ContentType: "image/jpeg", Width: 1200, Height: 400}
}

// --- Basic Put/Get ---

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put("k1", jpegFrame("frame-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := s.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got.Data) != "frame-bytes" || got.ContentType != "image/jpeg" || got.Width != 1200 || got.Height != 400 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Created.IsZero() {
		t.Error("created time not recorded")
	}
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.Get("nonexistent"); ok {
		t.Error("expected miss for nonexistent key")
	}
	if st := s.Stats(); st.Misses != 1 || st.Hits != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := newTestStore(t)
	s.Put("k", jpegFrame("old-frame"))
	s.Put("k", jpegFrame("new"))

	got, _ := s.Get("k")
	if string(got.Data) != "new" {
		t.Errorf("got %q, want new", got.Data)
	}
	if st := s.Stats(); st.Entries != 1 || st.Size != 3 {
		t.Errorf("stats after overwrite = %+v", st)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := newTestStore(t)
	s.Put("a", jpegFrame("a"))
	s.Put("b", jpegFrame("b"))

	s.Delete("a")
	s.Delete("missing")
	if _, ok := s.Get("a"); ok {
		t.Error("deleted frame still present")
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("b"); ok {
		t.Error("frame survived Clear")
	}
	entries, _ := os.ReadDir(s.cfg.Dir)
	if len(entries) != 0 {
		t.Errorf("files left after Clear: %d", len(entries))
	}
}

// --- TTL ---

func TestGetReturnsFalseForExpiredFrame(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.TTL = time.Minute })
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put("k", jpegFrame("x"))
	now = now.Add(2 * time.Minute)

	if _, ok := s.Get("k"); ok {
		t.Error("expected miss for expired frame")
	}
	if _, err := os.Stat(s.dataPath(fileName("k"))); !os.IsNotExist(err) {
		t.Error("expired frame file not removed")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.TTL = 0 })
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put("k", jpegFrame("x"))
	now = now.Add(1000 * time.Hour)
	if _, ok := s.Get("k"); !ok {
		t.Error("frame with no TTL expired")
	}
}

func TestSweepExpired(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.TTL = time.Minute })
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put("old", jpegFrame("x"))
	now = now.Add(50 * time.Second)
	s.Put("fresh", jpegFrame("y"))
	now = now.Add(20 * time.Second)

	s.sweepExpired()
	st := s.Stats()
	if st.Entries != 1 || st.Evictions != 1 {
		t.Errorf("stats after sweep = %+v", st)
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("fresh frame swept")
	}
}

// --- LRU ---

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.MaxSizeMB = 1 })
	chunk := strings.Repeat("x", 400<<10)

	s.Put("a", jpegFrame(chunk))
	s.Put("b", jpegFrame(chunk))
	s.Get("a") // a is now most recent
	s.Put("c", jpegFrame(chunk))

	if _, ok := s.Get("b"); ok {
		t.Error("least recently used frame should be evicted")
	}
	if _, ok := s.Get("a"); !ok {
		t.Error("recently used frame evicted")
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("newest frame evicted")
	}
	if st := s.Stats(); st.Evictions != 1 || st.Size > 1<<20 {
		t.Errorf("stats = %+v", st)
	}
}

func TestPutRejectsOversizedFrame(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.MaxSizeMB = 1 })
	if err := s.Put("big", Frame{Data: bytes.Repeat([]byte{1}, 2<<20)}); err == nil {
		t.Error("expected error for frame larger than the cache")
	}
	if s.Stats().Entries != 0 {
		t.Error("oversized frame stored")
	}
}

// --- Persistence ---

func TestReopenRestoresIndex(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(Config{Dir: dir, TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	s1.Put("a", jpegFrame("one"))
	s1.Put("b", jpegFrame("two"))
	s1.Close()

	s2, err := Open(Config{Dir: dir, TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, ok := s2.Get("b")
	if !ok || string(got.Data) != "two" {
		t.Errorf("reopened Get = %q, %v", got.Data, ok)
	}
	if st := s2.Stats(); st.Entries != 2 || st.Size != 6 {
		t.Errorf("reopened stats = %+v", st)
	}
}

func TestReopenDropsDebris(t *testing.T) {
	dir := t.TempDir()
	s1, _ := Open(Config{Dir: dir})
	s1.Put("keep", jpegFrame("ok"))
	s1.Close()

	// Orphaned meta, corrupt meta and a leftover temp file.
	os.WriteFile(filepath.Join(dir, "aaaaaaaaaaaaaaaa.meta"), []byte(`{"key":"x"}`), 0o644)
	os.WriteFile(filepath.Join(dir, "bbbbbbbbbbbbbbbb.meta"), []byte(`{not json`), 0o644)
	os.WriteFile(filepath.Join(dir, "bbbbbbbbbbbbbbbb.frame"), []byte(`zz`), 0o644)
	os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte(`partial`), 0o644)

	s2, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if st := s2.Stats(); st.Entries != 1 {
		t.Errorf("entries = %d, want 1", st.Entries)
	}
	for _, name := range []string{"aaaaaaaaaaaaaaaa.meta", "bbbbbbbbbbbbbbbb.meta", "bbbbbbbbbbbbbbbb.frame", ".tmp-123"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s not cleaned up", name)
		}
	}
}

func TestReopenDropsExpired(t *testing.T) {
	dir := t.TempDir()
	s1, _ := Open(Config{Dir: dir, TTL: time.Minute})
	s1.now = func() time.Time { return time.Now().Add(-time.Hour) }
	s1.Put("stale", jpegFrame("x"))
	s1.Close()

	s2, _ := Open(Config{Dir: dir, TTL: time.Minute})
	defer s2.Close()
	if s2.Stats().Entries != 0 {
		t.Error("expired frame restored")
	}
}

// --- Concurrency ---

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				key := fmt.Sprintf("k%d", (i+j)%10)
				s.Put(key, jpegFrame(key))
				if got, ok := s.Get(key); ok && string(got.Data) != key {
					t.Errorf("Get(%s) = %q", key, got.Data)
				}
			}
		}()
	}
	wg.Wait()
}

func TestCloseIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

// --- Keys ---

func TestRenderKey_Deterministic(t *testing.T) {
	k := RenderKey{
		Template:   "basic-with-logo-pc",
		Background: "bg.png1024",
		Logos:      []string{"a", "b"},
		Elements:   []map[string]any{{"id": "main-title", "text": "Sale"}},
		LogoHeight: 56,
		Format:     "jpeg",
		Quality:    90,
	}
	a, err := k.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if a != k.String() || len(a) != 64 {
		t.Errorf("hash = %q", a)
	}

	k2 := k
	k2.Logos = []string{"b", "a"}
	if k2.String() == a {
		t.Error("logo order must change the key")
	}
	k3 := k
	k3.LogoHeight = 57
	if k3.String() == a {
		t.Error("logo height must change the key")
	}
}

func TestRenderKey_Unencodable(t *testing.T) {
	k := RenderKey{Elements: make(chan int)}
	if _, err := k.Hash(); err == nil {
		t.Error("expected encode error")
	}
	if k.String() != "" {
		t.Error("String should be empty on error")
	}
}

func TestFileName(t *testing.T) {
	if got := fileName("a/b/../c"); len(got) != 16 || strings.ContainsAny(got, "/.") {
		t.Errorf("fileName = %q", got)
	}
	if fileName("x") != fileName("x") || fileName("x") == fileName("y") {
		t.Error("fileName must be deterministic and distinct")
	}
}
