// Package sstable implements the engine's on-disk Sorted String Tables:
// immutable files of ascending, non-duplicate key/payload records with a
// dense in-file index, written once by Writer and served by Reader.
package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mnohosten/tidekv/pkg/kvencoding"
)

// footerSize is the fixed trailing region: 8-byte index offset, 4-byte
// entry count.
const footerSize = 12

// FileName returns the canonical on-disk name for generation g.
func FileName(generation int) string {
	return fmt.Sprintf("sstable_%d.dat", generation)
}

// indexEntry is one (key, file offset) pair in the dense index.
type indexEntry struct {
	key    []byte
	offset int64
}

// Writer serializes an already-sorted, duplicate-free stream of entries
// into a new SSTable file, installing it atomically via temp-name-then-
// rename.
type Writer struct {
	dir        string
	generation int
	tmpPath    string
	finalPath  string
	file       *os.File
	buf        *bufio.Writer
	index      []indexEntry
	offset     int64
	count      int
}

// NewWriter creates a temporary file under dir for the given generation.
// The file is not visible under its final name until Finalize succeeds.
func NewWriter(dir string, generation int) (*Writer, error) {
	finalPath := filepath.Join(dir, FileName(generation))
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: create temp file: %w", err)
	}

	return &Writer{
		dir:        dir,
		generation: generation,
		tmpPath:    tmpPath,
		finalPath:  finalPath,
		file:       f,
		buf:        bufio.NewWriter(f),
	}, nil
}

// Write appends one record. Entries must be supplied in ascending key
// order with no duplicate keys.
func (w *Writer) Write(key, value []byte, tombstone bool) error {
	w.index = append(w.index, indexEntry{key: append([]byte(nil), key...), offset: w.offset})

	frame := kvencoding.EncodeSSTableRecord(key, value, tombstone)
	n, err := w.buf.Write(frame)
	if err != nil {
		return fmt.Errorf("sstable: write record: %w", err)
	}
	w.offset += int64(n)
	w.count++
	return nil
}

// Finalize writes the index and footer, syncs and renames the file into
// place, and returns a Reader opened on the new SSTable. On any failure
// the temp file is removed and never becomes visible under its final name.
func (w *Writer) Finalize() (*Reader, error) {
	indexOffset := w.offset

	for _, e := range w.index {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.key)))
		if _, err := w.buf.Write(lenBuf[:]); err != nil {
			return nil, w.abort(fmt.Errorf("sstable: write index key len: %w", err))
		}
		if _, err := w.buf.Write(e.key); err != nil {
			return nil, w.abort(fmt.Errorf("sstable: write index key: %w", err))
		}
		var offBuf [8]byte
		binary.LittleEndian.PutUint64(offBuf[:], uint64(e.offset))
		if _, err := w.buf.Write(offBuf[:]); err != nil {
			return nil, w.abort(fmt.Errorf("sstable: write index offset: %w", err))
		}
	}

	var footer [footerSize]byte
	binary.LittleEndian.PutUint64(footer[0:8], uint64(indexOffset))
	binary.LittleEndian.PutUint32(footer[8:12], uint32(w.count))
	if _, err := w.buf.Write(footer[:]); err != nil {
		return nil, w.abort(fmt.Errorf("sstable: write footer: %w", err))
	}

	if err := w.buf.Flush(); err != nil {
		return nil, w.abort(fmt.Errorf("sstable: flush: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		return nil, w.abort(fmt.Errorf("sstable: sync: %w", err))
	}
	if err := w.file.Close(); err != nil {
		return nil, w.abort(fmt.Errorf("sstable: close: %w", err))
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		os.Remove(w.tmpPath)
		return nil, fmt.Errorf("sstable: rename: %w", err)
	}

	return Open(w.finalPath, w.generation)
}

func (w *Writer) abort(cause error) error {
	w.file.Close()
	os.Remove(w.tmpPath)
	return cause
}

// Reader serves point and range lookups against an on-disk SSTable. The
// dense index is loaded into memory on Open; data is read from disk on
// demand.
type Reader struct {
	path       string
	generation int
	index      []indexEntry
	dataEnd    int64
}

// Generation returns the SSTable's generation number — its identity and
// recency rank (higher is newer).
func (r *Reader) Generation() int { return r.generation }

// Open reads the footer and loads the index of an existing SSTable file.
func Open(path string, generation int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("sstable: stat: %w", err)
	}
	size := info.Size()
	if size < footerSize {
		return nil, fmt.Errorf("sstable: %s: corrupt, smaller than footer", path)
	}

	var footer [footerSize]byte
	if _, err := f.ReadAt(footer[:], size-footerSize); err != nil {
		return nil, fmt.Errorf("sstable: %s: read footer: %w", path, err)
	}
	indexOffset := int64(binary.LittleEndian.Uint64(footer[0:8]))
	count := binary.LittleEndian.Uint32(footer[8:12])

	if indexOffset < 0 || indexOffset > size-footerSize {
		return nil, fmt.Errorf("sstable: %s: corrupt, index offset past EOF", path)
	}

	if _, err := f.Seek(indexOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sstable: %s: seek index: %w", path, err)
	}
	br := bufio.NewReader(io.LimitReader(f, size-footerSize-indexOffset))

	index := make([]indexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("sstable: %s: corrupt index: %w", path, err)
		}
		keyLen := binary.LittleEndian.Uint32(lenBuf[:])
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return nil, fmt.Errorf("sstable: %s: corrupt index: %w", path, err)
		}
		var offBuf [8]byte
		if _, err := io.ReadFull(br, offBuf[:]); err != nil {
			return nil, fmt.Errorf("sstable: %s: corrupt index: %w", path, err)
		}
		index = append(index, indexEntry{key: key, offset: int64(binary.LittleEndian.Uint64(offBuf[:]))})
	}

	return &Reader{path: path, generation: generation, index: index, dataEnd: indexOffset}, nil
}

// Path returns the SSTable's file path.
func (r *Reader) Path() string { return r.path }

// NumEntries returns the number of records in the table.
func (r *Reader) NumEntries() int { return len(r.index) }

// Get performs a binary search on the index for an exact key match, then
// reads the single matching record. The third return value is false when
// the key is not present in this table at all.
func (r *Reader) Get(key []byte) (value []byte, tombstone bool, found bool, err error) {
	i := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].key, key) >= 0
	})
	if i >= len(r.index) || !bytes.Equal(r.index[i].key, key) {
		return nil, false, false, nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, false, false, fmt.Errorf("sstable: open for read: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(r.index[i].offset, io.SeekStart); err != nil {
		return nil, false, false, fmt.Errorf("sstable: seek: %w", err)
	}
	rec, err := kvencoding.DecodeSSTableRecord(f)
	if err != nil {
		return nil, false, false, fmt.Errorf("sstable: decode record: %w", err)
	}
	return rec.Value, rec.Tombstone, true, nil
}

// RangeEntry is one key/payload pair yielded by Range.
type RangeEntry struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Range returns every record with start <= key <= end, ascending. Tombstones
// are included in the result; the engine is responsible for filtering them.
func (r *Reader) Range(start, end []byte) ([]RangeEntry, error) {
	i := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].key, start) >= 0
	})
	if i >= len(r.index) {
		return nil, nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open for read: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(r.index[i].offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sstable: seek: %w", err)
	}
	br := bufio.NewReader(f)

	var out []RangeEntry
	for ; i < len(r.index); i++ {
		rec, err := kvencoding.DecodeSSTableRecord(br)
		if err != nil {
			return nil, fmt.Errorf("sstable: decode record: %w", err)
		}
		if bytes.Compare(rec.Key, end) > 0 {
			break
		}
		out = append(out, RangeEntry{Key: rec.Key, Value: rec.Value, Tombstone: rec.Tombstone})
	}
	return out, nil
}

// Iterator returns a forward iterator over every record in the table, used
// by compaction's k-way merge.
func (r *Reader) Iterator() (*Iterator, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open for iteration: %w", err)
	}
	return &Iterator{f: f, br: bufio.NewReader(f), remaining: len(r.index)}, nil
}

// Iterator walks every record of a Reader's data block in file order
// (== ascending key order, since SSTable records are always sorted).
type Iterator struct {
	f         *os.File
	br        *bufio.Reader
	remaining int
	current   RangeEntry
}

// Next advances the iterator. It returns false once every record has been
// consumed.
func (it *Iterator) Next() bool {
	if it.remaining == 0 {
		return false
	}
	rec, err := kvencoding.DecodeSSTableRecord(it.br)
	if err != nil {
		it.remaining = 0
		return false
	}
	it.current = RangeEntry{Key: rec.Key, Value: rec.Value, Tombstone: rec.Tombstone}
	it.remaining--
	return true
}

// Entry returns the record the most recent Next() call produced.
func (it *Iterator) Entry() RangeEntry { return it.current }

// Close releases the iterator's file handle.
func (it *Iterator) Close() error { return it.f.Close() }
