// Package engine orchestrates the write-ahead log, memtable and SSTable
// set into the storage engine's public contract: Put, Get, Delete,
// BatchPut, GetRange and Close.
//
// Concurrency discipline: a single mutex guards every operation end to
// end, including reads. Flush and compaction are invoked from inside a
// write path that already holds the lock, so they are implemented as
// internal methods (suffixed Locked) that assume the caller holds mu —
// never re-entering the lock — mirroring the public/internal split the
// spec calls for in place of a genuinely reentrant mutex (spec.md §5,
// §9).
package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mnohosten/tidekv/pkg/kvencoding"
	"github.com/mnohosten/tidekv/pkg/memtable"
	"github.com/mnohosten/tidekv/pkg/sstable"
	"github.com/mnohosten/tidekv/pkg/wal"
)

// Engine is a single open instance of the storage engine over one data
// directory.
type Engine struct {
	mu sync.Mutex

	dataDir             string
	memtableSize        int
	compactionThreshold int

	log      *wal.Log
	mem      *memtable.Memtable
	sstables []*sstable.Reader // newest first

	nextGeneration int
	nextSequence   uint64
	closed         bool
}

// Open recovers (or creates) an engine over config.DataDir: it loads any
// existing SSTables from the directory listing, then replays the WAL into
// a fresh memtable. Recovery runs under the engine's lock so no reader can
// race with it (spec.md §4.6.1, §5).
func Open(config *Config) (*Engine, error) {
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	e := &Engine{
		dataDir:             config.DataDir,
		memtableSize:        config.MemtableSize,
		compactionThreshold: config.CompactionThreshold,
		mem:                 memtable.New(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tables, nextGen, err := scanManifest(config.DataDir)
	if err != nil {
		return nil, err
	}
	e.sstables = tables
	e.nextGeneration = nextGen

	log, err := wal.Open(filepath.Join(config.DataDir, "wal.log"))
	if err != nil {
		return nil, err
	}
	e.log = log

	if err := e.log.Replay(func(r wal.Record) error {
		switch r.Op {
		case kvencoding.OpPut:
			e.mem.Put(r.Key, r.Value)
		case kvencoding.OpDelete:
			e.mem.Delete(r.Key)
		}
		e.nextSequence++
		return nil
	}); err != nil {
		log.Close()
		return nil, fmt.Errorf("engine: replay wal: %w", err)
	}

	return e, nil
}

// Put appends a durable WAL record, then applies it to the memtable,
// flushing (and possibly compacting) if the memtable has crossed its size
// threshold.
func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := e.log.AppendPut(key, value); err != nil {
		return err
	}
	e.mem.Put(key, value)
	e.nextSequence++

	return e.maybeFlushLocked()
}

// Delete appends a durable tombstone WAL record, then applies it to the
// memtable. Deleting an absent key is not an error.
func (e *Engine) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := e.log.AppendDelete(key); err != nil {
		return err
	}
	e.mem.Delete(key)
	e.nextSequence++

	return e.maybeFlushLocked()
}

// BatchPut writes keys[i]/values[i] for every index as a single batch: all
// records are serialized to the WAL in order, each synced as it is
// appended, and the engine acknowledges only once every record is durable,
// so the batch is atomic with respect to the caller even though it is not
// atomic with respect to a crash mid-batch (spec.md §4.6).
func (e *Engine) BatchPut(keys, values [][]byte) error {
	if len(keys) != len(values) {
		return ErrBatchLengthMismatch
	}
	for _, k := range keys {
		if len(k) == 0 {
			return ErrEmptyKey
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	for i := range keys {
		if err := e.log.AppendPut(keys[i], values[i]); err != nil {
			return err
		}
		e.mem.Put(keys[i], values[i])
		e.nextSequence++
	}

	return e.maybeFlushLocked()
}

// Get consults the memtable first; if it holds a value, that value is
// returned. If it holds a tombstone, the key is reported absent without
// ever consulting the SSTables. Otherwise SSTables are searched
// newest-first and the first match wins.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false, ErrClosed
	}

	if p, ok := e.mem.Get(key); ok {
		if p.IsTombstone {
			return nil, false, nil
		}
		return p.Value, true, nil
	}

	for _, sst := range e.sstables {
		value, tombstone, found, err := sst.Get(key)
		if err != nil {
			return nil, false, err
		}
		if found {
			if tombstone {
				return nil, false, nil
			}
			return value, true, nil
		}
	}

	return nil, false, nil
}

// RangeEntry is one key/value pair returned by GetRange.
type RangeEntry struct {
	Key   []byte
	Value []byte
}

// GetRange returns every live key/value pair with start <= key <= end, in
// ascending order, merging the memtable and every SSTable (newest wins on
// duplicate keys; a tombstone as the newest write for a key suppresses it
// entirely).
func (e *Engine) GetRange(start, end []byte) ([]RangeEntry, error) {
	if bytes.Compare(start, end) > 0 {
		return nil, ErrInvalidRange
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	return e.mergeRangeLocked(start, end)
}

// Close flushes a non-empty memtable to an SSTable, truncates the WAL and
// closes every open file handle. It is safe to call once; later calls
// return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if e.mem.Len() > 0 {
		if err := e.flushLocked(); err != nil {
			return err
		}
	} else if err := e.log.Truncate(); err != nil {
		return err
	}

	if err := e.log.Close(); err != nil {
		return err
	}
	e.closed = true
	return nil
}

// Stats is a read-only snapshot of engine state, useful for operator
// introspection and for tests asserting flush/compaction happened.
type Stats struct {
	MemtableEntries int
	NumSSTables     int
	NextGeneration  int
}

// Stats returns a snapshot of the engine's current state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		MemtableEntries: e.mem.Len(),
		NumSSTables:     len(e.sstables),
		NextGeneration:  e.nextGeneration,
	}
}
