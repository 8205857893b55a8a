package offline

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNoActiveStore is returned when an operation needs an active store
	// version and none has been activated yet.
	ErrNoActiveStore = errors.New("no active store version")

	// ErrItemTooLarge is returned when an entry exceeds the store capacity.
	ErrItemTooLarge = errors.New("entry too large for store")

	// ErrStoreClosed is returned by stores whose storage has been closed
	// or that have been deleted.
	ErrStoreClosed = errors.New("store closed")

	// ErrInvalidName is returned for empty store names.
	ErrInvalidName = errors.New("invalid store name")
)

// Entry is a stored response, keyed by the request that produced it.
type Entry struct {
	Key      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt string // store version the entry was written under
	Created  time.Time
}

// size reports the number of bytes the entry accounts for against a store's
// capacity.
func (e Entry) size() int64 {
	n := int64(len(e.Body)) + int64(len(e.Key))
	for k, vs := range e.Header {
		n += int64(len(k))
		for _, v := range vs {
			n += int64(len(v))
		}
	}
	return n
}

// Store is a single named response store.
type Store interface {
	// Name returns the store name, which is its version identifier.
	Name() string

	// Get returns the entry stored under key.
	Get(key string) (Entry, bool)

	// Put stores an entry under key, replacing any previous one.
	Put(key string, entry Entry) error

	// Delete removes the entry stored under key.
	Delete(key string) error

	// Keys lists the keys currently stored.
	Keys() []string

	// Len returns the number of entries.
	Len() int

	// Size returns the accounted size in bytes.
	Size() int64
}

// Storage holds named stores, mirroring the browser CacheStorage API.
type Storage interface {
	// Open returns the store with the given name, creating it if absent.
	Open(name string) (Store, error)

	// Has reports whether a store with the given name exists.
	Has(name string) bool

	// Delete removes the named store and every entry in it. It reports
	// whether a store was removed.
	Delete(name string) (bool, error)

	// Names lists the existing stores.
	Names() ([]string, error)

	// Close flushes and releases the storage.
	Close() error
}

// StoreInfo summarizes a store for listings.
type StoreInfo struct {
	Name    string
	Entries int
	Size    int64
}

// Describe returns a summary of every store in s, sorted by name.
func Describe(s Storage) ([]StoreInfo, error) {
	names, err := s.Names()
	if err != nil {
		return nil, err
	}
	infos := make([]StoreInfo, 0, len(names))
	for _, name := range names {
		st, err := s.Open(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, StoreInfo{Name: name, Entries: st.Len(), Size: st.Size()})
	}
	return infos, nil
}
