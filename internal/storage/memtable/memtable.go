// Package memtable holds the engine's in-memory write buffer: a
// capacity-bounded slice of entries kept sorted by key, so a flush can dump
// it straight into an SSTable without re-sorting.
package memtable

import (
	"iter"
	"sort"

	"lakekv/internal/storage/value"
)

// Entry is one key-value pair. The value may be a tombstone.
type Entry struct {
	Key   string
	Value value.Value
}

// MemTable is a sorted, unique-key in-memory buffer. It is not safe for
// concurrent use; the engine serializes access under its lock.
type MemTable struct {
	entries  []Entry
	capacity int
}

// New returns an empty memtable. capacity <= 0 means unbounded, which the
// engine uses as a compaction merge buffer.
func New(capacity int) *MemTable {
	return &MemTable{capacity: capacity}
}

// search returns the index of the first entry with key >= k.
func (m *MemTable) search(k string) int {
	return sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Key >= k
	})
}

// Add inserts or overwrites a key, keeping the slice sorted.
func (m *MemTable) Add(key string, v value.Value) {
	idx := m.search(key)
	if idx < len(m.entries) && m.entries[idx].Key == key {
		m.entries[idx].Value = v
		return
	}
	m.entries = append(m.entries, Entry{})
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = Entry{Key: key, Value: v}
}

// Get returns the value for key, which may be a tombstone.
func (m *MemTable) Get(key string) (value.Value, bool) {
	idx := m.search(key)
	if idx < len(m.entries) && m.entries[idx].Key == key {
		return m.entries[idx].Value, true
	}
	return value.Value{}, false
}

// IsFull reports whether the memtable has reached its capacity.
func (m *MemTable) IsFull() bool {
	return m.capacity > 0 && len(m.entries) >= m.capacity
}

func (m *MemTable) Len() int { return len(m.entries) }

// Entries returns the entries in ascending key order. The slice is shared;
// callers must not mutate it.
func (m *MemTable) Entries() []Entry { return m.entries }

// RangeScan yields entries with start <= key <= end in ascending order.
func (m *MemTable) RangeScan(start, end string) iter.Seq[Entry] {
	lo := m.search(start)
	hi := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Key > end
	})
	return func(yield func(Entry) bool) {
		for i := lo; i < hi; i++ {
			if !yield(m.entries[i]) {
				return
			}
		}
	}
}
