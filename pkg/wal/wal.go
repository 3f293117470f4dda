// Package wal implements the engine's write-ahead log: an append-only file
// of PUT/DELETE record frames, synced to durable media on every write and
// replayed sequentially during recovery.
package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mnohosten/tidekv/pkg/kvencoding"
)

// Log is the write-ahead log for a single engine instance. It owns one
// file handle for the lifetime of the engine.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open opens (or creates) the WAL file at path, appending to any existing
// content. Recovery is the caller's job via Replay.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &Log{path: path, file: file}, nil
}

// AppendPut serializes and durably persists a PUT record. It returns only
// after the write has been synced to stable storage.
func (l *Log) AppendPut(key, value []byte) error {
	return l.append(kvencoding.EncodeWALRecord(kvencoding.OpPut, key, value))
}

// AppendDelete serializes and durably persists a DELETE record. It returns
// only after the write has been synced to stable storage.
func (l *Log) AppendDelete(key []byte) error {
	return l.append(kvencoding.EncodeWALRecord(kvencoding.OpDelete, key, nil))
}

func (l *Log) append(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(frame); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// Record is one replayed WAL entry.
type Record struct {
	Op    kvencoding.OpType
	Key   []byte
	Value []byte
}

// Replay reads every complete record from the beginning of the log and
// invokes fn for each, in order. A partial final record — the torn tail
// left by a crash mid-append — is silently discarded rather than treated
// as an error.
func (l *Log) Replay(fn func(Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	defer l.file.Seek(0, io.SeekEnd)

	r := bufio.NewReader(l.file)
	for {
		rec, err := kvencoding.DecodeWALRecord(r)
		if err != nil {
			if errors.Is(err, kvencoding.ErrTornRecord) {
				return nil
			}
			return fmt.Errorf("wal: replay: %w", err)
		}
		if err := fn(Record{Op: rec.Op, Key: rec.Key, Value: rec.Value}); err != nil {
			return err
		}
	}
}

// Truncate reduces the log to zero length by truncating the open file in
// place and rewinding it to the start. Called only after the memtable the WAL represents has been
// durably materialized as an SSTable.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek after truncate: %w", err)
	}
	return nil
}

// Close closes the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Empty reports whether the log currently holds zero bytes.
func (l *Log) Empty() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.file.Stat()
	if err != nil {
		return false, err
	}
	return info.Size() == 0, nil
}
