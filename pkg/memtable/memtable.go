// Package memtable implements the in-memory ordered key/payload map the
// engine buffers writes into before they are flushed to an SSTable.
package memtable

import (
	"math/rand"
	"time"
)

// Payload is a tagged union of "a value" and "a tombstone" — the sentinel
// marking a logical deletion. IsTombstone is the tag; Value is meaningless
// when it is set.
type Payload struct {
	Value       []byte
	IsTombstone bool
}

// Entry is a single key/payload pair, as returned by in-order traversal.
type Entry struct {
	Key     []byte
	Payload Payload
}

// Memtable is an ordered mapping from key to payload, backed by a skip
// list. At most one entry exists per key; a later write overwrites an
// earlier one in place. It is not safe for concurrent use — callers
// (the engine) provide their own mutual exclusion.
type Memtable struct {
	list *skipList
}

// New creates an empty memtable.
func New() *Memtable {
	return &Memtable{list: newSkipList(rand.New(rand.NewSource(time.Now().UnixNano())))}
}

// Put inserts or overwrites key with a value payload.
func (m *Memtable) Put(key, value []byte) {
	m.list.insert(key, &Payload{Value: value})
}

// Delete inserts or overwrites key with a tombstone payload.
func (m *Memtable) Delete(key []byte) {
	m.list.insert(key, &Payload{IsTombstone: true})
}

// Get returns the payload stored for key, if any. The second return value
// is false only when the key is entirely absent from the memtable — a
// tombstone is returned as (payload{IsTombstone:true}, true), and it is the
// caller's job to treat that as "absent" at the engine's Get boundary.
func (m *Memtable) Get(key []byte) (Payload, bool) {
	v, ok := m.list.search(key)
	if !ok {
		return Payload{}, false
	}
	return *v, true
}

// Len returns the number of distinct keys currently held.
func (m *Memtable) Len() int {
	return m.list.size
}

// Clear empties the memtable, for use after a successful flush.
func (m *Memtable) Clear() {
	m.list = newSkipList(m.list.random)
}

// IterSorted returns every entry in ascending key order.
func (m *Memtable) IterSorted() []Entry {
	entries := make([]Entry, 0, m.list.size)
	for n := m.list.head.forward[0]; n != nil; n = n.forward[0] {
		entries = append(entries, Entry{Key: n.key, Payload: *n.value})
	}
	return entries
}
