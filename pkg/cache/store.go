// Package cache keeps encoded banner frames on disk so repeated render
// requests are served without compositing again.
package cache

import (
	"cmp"
	"container/list"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Config holds configuration for a frame Store.
type Config struct {
	// Dir is the directory frames are stored in.
	Dir string

	// MaxSizeMB bounds the total size of stored frames. Default: 200.
	MaxSizeMB int

	// TTL is how long a frame stays valid. Zero keeps frames until they
	// are evicted.
	TTL time.Duration

	// SweepInterval is how often expired frames are removed in the
	// background. Default: 5 minutes.
	SweepInterval time.Duration

	Logger *slog.Logger
}

// Frame is an encoded image with its content type.
type Frame struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Created     time.Time
}

// Stats holds runtime statistics for a Store.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
	Entries   int
}

// frameMeta is persisted next to each frame as {name}.meta.
type frameMeta struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Created     int64  `json:"created"` // UnixNano
	Size        int64  `json:"size"`
}

// Store is a disk-backed frame cache with LRU eviction and a TTL. Each
// frame is two files, {name}.frame and {name}.meta, written atomically.
// Metadata is kept in memory, so lookups touch the disk only on hits.
type Store struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	lru       *list.List               // front = most recently used
	items     map[string]*list.Element // file name -> element holding *frameMeta
	curSize   int64
	hits      int64
	misses    int64
	evictions int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open creates the cache directory if needed, indexes the frames already
// on disk and starts the background sweeper.
func Open(cfg Config) (*Store, error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 200
	}
	if cfg.TTL < 0 {
		cfg.TTL = 0
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directory %s: %w", cfg.Dir, err)
	}

	s := &Store{
		cfg:   cfg,
		log:   cfg.Logger,
		now:   time.Now,
		lru:   list.New(),
		items: make(map[string]*list.Element),
		done:  make(chan struct{}),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if err := s.scanDir(); err != nil {
		return nil, fmt.Errorf("cache: scan directory: %w", err)
	}

	s.wg.Add(1)
	go s.sweepLoop()
	return s, nil
}

// Get returns the frame stored under key. Expired or unreadable frames
// count as misses and are dropped.
func (s *Store) Get(key string) (Frame, bool) {
	name := fileName(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[name]
	if !ok {
		s.misses++
		return Frame{}, false
	}
	meta := elem.Value.(*frameMeta)
	if meta.Key != key || s.expired(meta) {
		s.removeLocked(name, elem)
		s.misses++
		return Frame{}, false
	}
	data, err := os.ReadFile(s.dataPath(name))
	if err != nil {
		s.log.Warn("cache: unreadable frame", "key", key, "error", err)
		s.removeLocked(name, elem)
		s.misses++
		return Frame{}, false
	}

	s.lru.MoveToFront(elem)
	s.hits++
	return Frame{
		Data:        data,
		ContentType: meta.ContentType,
		Width:       meta.Width,
		Height:      meta.Height,
		Created:     time.Unix(0, meta.Created),
	}, true
}

// Put stores f under key, replacing any previous frame, and evicts least
// recently used frames beyond the size limit.
func (s *Store) Put(key string, f Frame) error {
	name := fileName(key)
	meta := &frameMeta{
		Key:         key,
		ContentType: f.ContentType,
		Width:       f.Width,
		Height:      f.Height,
		Created:     s.now().UnixNano(),
		Size:        int64(len(f.Data)),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("cache: marshal meta: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.Size > s.maxBytes() {
		return fmt.Errorf("cache: frame of %d bytes exceeds the cache size", meta.Size)
	}
	if err := atomicWrite(s.dataPath(name), f.Data, s.cfg.Dir); err != nil {
		return fmt.Errorf("cache: write frame: %w", err)
	}
	if err := atomicWrite(s.metaPath(name), metaBytes, s.cfg.Dir); err != nil {
		_ = os.Remove(s.dataPath(name))
		return fmt.Errorf("cache: write meta: %w", err)
	}

	if elem, ok := s.items[name]; ok {
		old := elem.Value.(*frameMeta)
		s.curSize -= old.Size
		elem.Value = meta
		s.lru.MoveToFront(elem)
	} else {
		s.items[name] = s.lru.PushFront(meta)
	}
	s.curSize += meta.Size
	s.evictLocked()
	return nil
}

// Delete removes the frame stored under key, if any.
func (s *Store) Delete(key string) {
	name := fileName(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[name]; ok {
		s.removeLocked(name, elem)
	}
}

// Clear removes every frame.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(n, ".frame") || strings.HasSuffix(n, ".meta") || strings.HasPrefix(n, ".tmp-") {
			_ = os.Remove(filepath.Join(s.cfg.Dir, n))
		}
	}
	s.lru.Init()
	s.items = make(map[string]*list.Element)
	s.curSize = 0
	return nil
}

// Stats returns a snapshot of cache statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Size:      s.curSize,
		Entries:   s.lru.Len(),
	}
}

// Close stops the sweeper. It is safe to call Close more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

func (s *Store) dataPath(name string) string {
	return filepath.Join(s.cfg.Dir, name+".frame")
}

func (s *Store) metaPath(name string) string {
	return filepath.Join(s.cfg.Dir, name+".meta")
}

func (s *Store) maxBytes() int64 {
	return int64(s.cfg.MaxSizeMB) << 20
}

func (s *Store) expired(m *frameMeta) bool {
	if s.cfg.TTL <= 0 {
		return false
	}
	return s.now().Sub(time.Unix(0, m.Created)) > s.cfg.TTL
}

// removeLocked drops an entry and its files. Caller holds s.mu.
func (s *Store) removeLocked(name string, elem *list.Element) {
	meta := elem.Value.(*frameMeta)
	s.curSize -= meta.Size
	s.lru.Remove(elem)
	delete(s.items, name)
	_ = os.Remove(s.dataPath(name))
	_ = os.Remove(s.metaPath(name))
}

// evictLocked removes expired frames, then least recently used ones, until
// the cache fits. Caller holds s.mu.
func (s *Store) evictLocked() {
	limit := s.maxBytes()
	if s.curSize <= limit {
		return
	}
	for name, elem := range s.items {
		if s.expired(elem.Value.(*frameMeta)) {
			s.removeLocked(name, elem)
			s.evictions++
		}
	}
	for s.curSize > limit && s.lru.Len() > 0 {
		back := s.lru.Back()
		s.removeLocked(fileName(back.Value.(*frameMeta).Key), back)
		s.evictions++
	}
}

// scanDir rebuilds the index from the .meta files on disk, dropping
// orphaned, corrupt and expired entries. Older frames end up at the back
// of the LRU.
func (s *Store) scanDir() error {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return err
	}

	var metas []*frameMeta
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(n, ".tmp-") {
			_ = os.Remove(filepath.Join(s.cfg.Dir, n))
			continue
		}
		if !strings.HasSuffix(n, ".meta") {
			continue
		}
		name := strings.TrimSuffix(n, ".meta")

		raw, err := os.ReadFile(s.metaPath(name))
		var m frameMeta
		if err == nil {
			err = json.Unmarshal(raw, &m)
		}
		_, statErr := os.Stat(s.dataPath(name))
		if err != nil || statErr != nil || fileName(m.Key) != name || s.expired(&m) {
			_ = os.Remove(s.metaPath(name))
			_ = os.Remove(s.dataPath(name))
			continue
		}
		metas = append(metas, &m)
	}

	slices.SortFunc(metas, func(a, b *frameMeta) int { return cmp.Compare(a.Created, b.Created) })
	for _, m := range metas {
		s.items[fileName(m.Key)] = s.lru.PushFront(m)
		s.curSize += m.Size
	}
	s.evictLocked()
	return nil
}

func (s *Store) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

// sweepExpired removes every expired frame.
func (s *Store) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, elem := range s.items {
		if s.expired(elem.Value.(*frameMeta)) {
			s.removeLocked(name, elem)
			s.evictions++
		}
	}
}

// atomicWrite writes data to path via a temporary file and rename.
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
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	success = true
	return nil
}
