package offline

import (
	"container/list"
	"sort"
	"sync"
)

// MemoryStorage keeps stores in process memory. Each store is bounded by
// the same byte capacity and evicts least recently used entries.
type MemoryStorage struct {
	capacity int64

	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewMemoryStorage creates an in-memory storage whose stores hold at most
// capacity bytes each. A capacity of zero or less means unbounded.
func NewMemoryStorage(capacity int64) *MemoryStorage {
	return &MemoryStorage{
		capacity: capacity,
		stores:   make(map[string]*MemoryStore),
	}
}

// Open returns the named store, creating it if needed.
func (s *MemoryStorage) Open(name string) (Store, error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[name]; ok {
		return st, nil
	}
	st := newMemoryStore(name, s.capacity)
	s.stores[name] = st
	return st, nil
}

// Has reports whether the named store exists.
func (s *MemoryStorage) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.stores[name]
	return ok
}

// Delete drops the named store. Handles to it stop returning entries.
func (s *MemoryStorage) Delete(name string) (bool, error) {
	s.mu.Lock()
	st, ok := s.stores[name]
	delete(s.stores, name)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	st.drop()
	return true, nil
}

// Names lists the stores in lexical order.
func (s *MemoryStorage) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op; memory stores have nothing to flush.
func (s *MemoryStorage) Close() error {
	return nil
}

// MemoryStore is an LRU-bounded store held in memory.
type MemoryStore struct {
	name     string
	capacity int64

	mu       sync.Mutex
	size     int64
	items    map[string]*list.Element
	eviction *list.List
	dropped  bool
}

type memoryItem struct {
	key   string
	entry Entry
	size  int64
}

func newMemoryStore(name string, capacity int64) *MemoryStore {
	return &MemoryStore{
		name:     name,
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Capacity returns the byte bound, zero when unbounded.
func (m *MemoryStore) Capacity() int64 { return m.capacity }

// Name returns the store version.
func (m *MemoryStore) Name() string { return m.name }

// Get returns the entry for key and marks it most recently used.
func (m *MemoryStore) Get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok || m.dropped {
		return Entry{}, false
	}
	m.eviction.MoveToFront(elem)
	return cloneEntry(elem.Value.(*memoryItem).entry), true
}

// Put stores entry under key, evicting the oldest entries when full.
func (m *MemoryStore) Put(key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dropped {
		return ErrStoreClosed
	}

	entry = cloneEntry(entry)
	entry.Key = key
	n := entry.size()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	if m.capacity > 0 && n > m.capacity {
		return ErrItemTooLarge
	}
	for m.capacity > 0 && m.size+n > m.capacity && m.eviction.Len() > 0 {
		m.removeElement(m.eviction.Back())
	}

	m.items[key] = m.eviction.PushFront(&memoryItem{key: key, entry: entry, size: n})
	m.size += n
	return nil
}

// Delete removes key from the store.
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	return nil
}

// Keys lists stored keys, most recently used first.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.items))
	for e := m.eviction.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*memoryItem).key)
	}
	return keys
}

// Len returns the number of entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.items)
}

// Size returns the accounted size in bytes.
func (m *MemoryStore) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.size
}

func (m *MemoryStore) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.eviction.Init()
	m.size = 0
	m.dropped = true
}

func (m *MemoryStore) removeElement(elem *list.Element) {
	item := elem.Value.(*memoryItem)
	m.eviction.Remove(elem)
	delete(m.items, item.key)
	m.size -= item.size
}

// cloneEntry copies the mutable parts of an entry so callers cannot alias
// stored data.
func cloneEntry(e Entry) Entry {
	e.Header = e.Header.Clone()
	if e.Body != nil {
		e.Body = append([]byte(nil), e.Body...)
	}
	return e
}
