package offline

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const (
	indexFile    = "store.index"
	entrySuffix  = ".entry"
	compressOver = 1024 // only compress entries larger than this
)

// DiskConfig configures a DiskStorage.
type DiskConfig struct {
	// Dir is the root directory; each store lives in a subdirectory.
	Dir string

	// Capacity bounds each store in bytes on disk. Zero means unbounded.
	Capacity int64

	// CompressionLevel is the zstd level (1-22). Zero disables compression.
	CompressionLevel int
}

// DiskStorage persists stores below a root directory. Entries are gob
// encoded, optionally zstd compressed, and written atomically.
type DiskStorage struct {
	dir      string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu     sync.Mutex
	stores map[string]*DiskStore
	closed bool
}

// NewDiskStorage opens (creating if needed) a storage rooted at cfg.Dir.
func NewDiskStorage(cfg DiskConfig) (*DiskStorage, error) {
	if cfg.Dir == "" {
		return nil, errors.New("disk storage directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	ds := &DiskStorage{
		dir:      cfg.Dir,
		capacity: cfg.Capacity,
		stores:   make(map[string]*DiskStore),
	}

	if cfg.CompressionLevel > 0 {
		var err error
		ds.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.CompressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// The decoder is always available so stores written with compression
	// can be read back by a storage opened without it.
	var err error
	ds.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return ds, nil
}

// Dir returns the root directory.
func (s *DiskStorage) Dir() string { return s.dir }

// Open returns the named store, loading its index from disk or creating it.
func (s *DiskStorage) Open(name string) (Store, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if st, ok := s.stores[name]; ok {
		return st, nil
	}

	path := s.storePath(name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store %q: %w", name, err)
	}

	st := &DiskStore{
		name:     name,
		path:     path,
		capacity: s.capacity,
		storage:  s,
		index:    make(map[string]*diskEntry),
	}
	if err := st.loadIndex(); err != nil {
		// A broken index only costs us the cached entries.
		log.Warn("Discarding unreadable store index", "store", name, "err", err)
		st.index = make(map[string]*diskEntry)
	}
	st.calculateSize()

	s.stores[name] = st
	return st, nil
}

// Has reports whether the named store exists on disk.
func (s *DiskStorage) Has(name string) bool {
	if name == "" {
		return false
	}
	info, err := os.Stat(s.storePath(name))
	return err == nil && info.IsDir()
}

// Delete removes the named store directory and invalidates open handles.
func (s *DiskStorage) Delete(name string) (bool, error) {
	if name == "" {
		return false, ErrInvalidName
	}

	s.mu.Lock()
	st, open := s.stores[name]
	delete(s.stores, name)
	s.mu.Unlock()

	if open {
		st.drop()
	}

	path := s.storePath(name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return open, nil
	}
	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("failed to remove store %q: %w", name, err)
	}
	return true, nil
}

// Names lists the stores present on disk in lexical order.
func (s *DiskStorage) Names() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		name, err := url.PathUnescape(de.Name())
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close saves every open store index and releases the codecs.
func (s *DiskStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, st := range s.stores {
		if err := st.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.encoder != nil {
		_ = s.encoder.Close()
	}
	s.decoder.Close()
	return errors.Join(errs...)
}

func (s *DiskStorage) storePath(name string) string {
	return filepath.Join(s.dir, url.PathEscape(name))
}

// DiskStore is a single store directory.
type DiskStore struct {
	name     string
	path     string
	capacity int64
	storage  *DiskStorage

	mu      sync.Mutex
	index   map[string]*diskEntry
	size    int64
	dropped bool
}

// diskEntry is the index record for one stored entry.
type diskEntry struct {
	Key        string
	File       string
	Size       int64 // bytes on disk
	Compressed bool
	Stored     time.Time
	LastAccess time.Time
}

// Name returns the store version.
func (d *DiskStore) Name() string { return d.name }

// Get reads the entry for key from disk. Unreadable entries are dropped.
func (d *DiskStore) Get(key string) (Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dropped {
		return Entry{}, false
	}
	de, ok := d.index[key]
	if !ok {
		return Entry{}, false
	}

	data, err := os.ReadFile(filepath.Join(d.path, de.File))
	if err == nil && de.Compressed {
		data, err = d.storage.decoder.DecodeAll(data, nil)
	}
	var entry Entry
	if err == nil {
		err = gob.NewDecoder(bytes.NewReader(data)).Decode(&entry)
	}
	if err != nil {
		log.Debug("Dropping corrupt store entry", "store", d.name, "key", key, "err", err)
		d.removeLocked(key)
		return Entry{}, false
	}

	de.LastAccess = time.Now()
	return entry, true
}

// Put writes entry under key, evicting least recently used entries when the
// store is over capacity.
func (d *DiskStore) Put(key string, entry Entry) error {
	entry.Key = key

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	data := buf.Bytes()

	compressed := false
	if enc := d.storage.encoder; enc != nil && len(data) > compressOver {
		if c := enc.EncodeAll(data, nil); len(c) < len(data) {
			data = c
			compressed = true
		}
	}
	n := int64(len(data))

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dropped {
		return ErrStoreClosed
	}
	if d.capacity > 0 && n > d.capacity {
		return ErrItemTooLarge
	}
	if _, ok := d.index[key]; ok {
		d.removeLocked(key)
	}
	for d.capacity > 0 && d.size+n > d.capacity && len(d.index) > 0 {
		d.evictOldest()
	}

	file := entryFileName(key)
	if err := writeFileAtomic(filepath.Join(d.path, file), data); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	now := time.Now()
	d.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		Size:       n,
		Compressed: compressed,
		Stored:     now,
		LastAccess: now,
	}
	d.size += n

	return d.saveIndex()
}

// Delete removes key from the store.
func (d *DiskStore) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dropped {
		return nil
	}
	if _, ok := d.index[key]; !ok {
		return nil
	}
	d.removeLocked(key)
	return d.saveIndex()
}

// Keys lists stored keys in lexical order.
func (d *DiskStore) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.index))
	for k := range d.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (d *DiskStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.index)
}

// Size returns the bytes used on disk by entries.
func (d *DiskStore) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.size
}

func (d *DiskStore) drop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.index = make(map[string]*diskEntry)
	d.size = 0
	d.dropped = true
}

func (d *DiskStore) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dropped {
		return nil
	}
	return d.saveIndex()
}

func (d *DiskStore) removeLocked(key string) {
	de, ok := d.index[key]
	if !ok {
		return
	}
	_ = os.Remove(filepath.Join(d.path, de.File))
	d.size -= de.Size
	delete(d.index, key)
}

func (d *DiskStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, de := range d.index {
		if oldestKey == "" || de.LastAccess.Before(oldest) {
			oldestKey = key
			oldest = de.LastAccess
		}
	}
	if oldestKey != "" {
		log.Debug("Evicting store entry", "store", d.name, "key", oldestKey)
		d.removeLocked(oldestKey)
	}
}

func (d *DiskStore) calculateSize() {
	d.size = 0
	for _, de := range d.index {
		d.size += de.Size
	}
}

func (d *DiskStore) loadIndex() error {
	f, err := os.Open(filepath.Join(d.path, indexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close() //nolint:errcheck

	return gob.NewDecoder(f).Decode(&d.index)
}

func (d *DiskStore) saveIndex() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d.index); err != nil {
		return fmt.Errorf("failed to encode store index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(d.path, indexFile), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to save store index: %w", err)
	}
	return nil
}

func entryFileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16]) + entrySuffix
}

// writeFileAtomic writes to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
