package kv

import (
	"context"
	"strings"
	"sync"

	"github.com/INLOpen/skiplist"
)

// tombstoneCompactionMin is the tombstone count below which deletes never
// trigger a rebuild.
const tombstoneCompactionMin = 256

// entry is a skiplist node payload. Deletes flip deleted rather than
// removing the node, like memtable tombstones.
type entry struct {
	value   string
	deleted bool
}

// MemoryStore keeps pairs in a sorted skiplist. It is safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	data       *skiplist.SkipList[string, *entry]
	live       int
	tombstones int
	sizeBytes  int64
	maxBytes   int64
	closed     bool
}

var _ Store = (*MemoryStore)(nil)
var _ PrefixLister = (*MemoryStore)(nil)
var _ Budgeted = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. maxBytes of zero disables the budget.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{
		data:     newSkipList(),
		maxBytes: maxBytes,
	}
}

func newSkipList() *skiplist.SkipList[string, *entry] {
	return skiplist.NewWithComparator[string, *entry](strings.Compare)
}

func (m *MemoryStore) MaxBytes() int64 { return m.maxBytes }

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	e := m.lookup(key)
	if e == nil {
		return "", false, nil
	}
	return e.value, true, nil
}

// lookup returns the live entry for key. Must be called with m.mu held.
func (m *MemoryStore) lookup(key string) *entry {
	node, ok := m.data.Seek(key)
	if !ok || node.Key() != key {
		return nil
	}
	e := node.Value()
	if e.deleted {
		return nil
	}
	return e
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	newSize := m.sizeBytes + pairSize(key, value)
	if existing := m.lookup(key); existing != nil {
		newSize -= pairSize(key, existing.value)
	}
	if m.maxBytes > 0 && newSize > m.maxBytes {
		return budgetError(m.maxBytes, newSize)
	}
	m.put(key, value)
	return nil
}

// put writes key, reviving a tombstone in place when there is one. Must be
// called with m.mu held.
func (m *MemoryStore) put(key, value string) {
	node, ok := m.data.Seek(key)
	if !ok || node.Key() != key {
		m.data.Insert(key, &entry{value: value})
		m.live++
		m.sizeBytes += pairSize(key, value)
		return
	}
	e := node.Value()
	if e.deleted {
		e.deleted = false
		m.tombstones--
		m.live++
	} else {
		m.sizeBytes -= pairSize(key, e.value)
	}
	e.value = value
	m.sizeBytes += pairSize(key, value)
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	e := m.lookup(key)
	if e == nil {
		return nil
	}
	e.deleted = true
	m.live--
	m.tombstones++
	m.sizeBytes -= pairSize(key, e.value)
	e.value = ""

	if m.tombstones >= tombstoneCompactionMin && m.tombstones > m.live {
		m.compact()
	}
	return nil
}

// compact rebuilds the skiplist without tombstones. Must be called with m.mu held.
func (m *MemoryStore) compact() {
	fresh := newSkipList()
	m.data.Range(func(k string, e *entry) bool {
		if !e.deleted {
			fresh.Insert(k, e)
		}
		return true
	})
	m.data = fresh
	m.tombstones = 0
}

func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, m.live)
	m.data.Range(func(k string, e *entry) bool {
		if !e.deleted {
			keys = append(keys, k)
		}
		return true
	})
	return keys, nil
}

// KeysWithPrefix seeks to prefix and walks forward while keys share it.
func (m *MemoryStore) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var keys []string
	it := m.data.NewIterator()
	for ok := it.Seek(prefix); ok; ok = it.Next() {
		k := it.Key()
		if !strings.HasPrefix(k, prefix) {
			break
		}
		if !it.Value().deleted {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemoryStore) TotalBytes(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.sizeBytes, nil
}

// Len is the number of present keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live
}

// pairs returns every present pair in key order.
func (m *MemoryStore) pairs() []Pair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Pair, 0, m.live)
	m.data.Range(func(k string, e *entry) bool {
		if !e.deleted {
			out = append(out, Pair{Key: k, Value: e.value})
		}
		return true
	})
	return out
}

// load replaces the contents with pairs, ignoring the budget.
func (m *MemoryStore) load(pairs []Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = newSkipList()
	m.live, m.tombstones, m.sizeBytes = 0, 0, 0
	for _, p := range pairs {
		m.put(p.Key, p.Value)
	}
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = newSkipList()
	return nil
}
