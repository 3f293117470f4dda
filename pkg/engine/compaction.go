package engine

import (
	"bytes"
	"container/heap"
	"os"

	"github.com/mnohosten/tidekv/pkg/sstable"
)

// mergeSource is one SSTable's forward iterator plus its recency rank
// (lower rank == newer, matching e.sstables' newest-first order) so ties
// on equal keys resolve to the newest source.
type mergeSource struct {
	iter    *sstable.Iterator
	rank    int
	valid   bool
	current sstable.RangeEntry
}

// mergeHeap is a min-heap ordered by current key, tie-broken by rank
// (newest first), used to drive the k-way merge for compaction.
type mergeHeap []*mergeSource

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].current.Key, h[j].current.Key)
	if c != 0 {
		return c < 0
	}
	return h[i].rank < h[j].rank
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(*mergeSource)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// compactLocked merges every live SSTable into a single new one, discarding
// superseded entries and — because this compaction always covers the
// entire manifest — tombstones too (spec.md §4.6.3, §9 design note:
// tombstone GC is only sound when the compacted set is the whole
// manifest, which it always is here). Caller holds mu.
func (e *Engine) compactLocked() error {
	if len(e.sstables) <= 1 {
		return nil
	}

	sources := make([]*mergeSource, 0, len(e.sstables))
	for rank, sst := range e.sstables {
		it, err := sst.Iterator()
		if err != nil {
			for _, s := range sources {
				s.iter.Close()
			}
			return err
		}
		sources = append(sources, &mergeSource{iter: it, rank: rank})
	}

	h := make(mergeHeap, 0, len(sources))
	for _, s := range sources {
		if s.iter.Next() {
			s.valid = true
			s.current = s.iter.Entry()
			h = append(h, s)
		}
	}
	heap.Init(&h)

	generation := e.nextGeneration
	e.nextGeneration++

	w, err := sstable.NewWriter(e.dataDir, generation)
	if err != nil {
		closeAll(sources)
		return err
	}

	var lastKey []byte
	for h.Len() > 0 {
		top := h[0]
		entry := top.current

		if lastKey == nil || !bytes.Equal(entry.Key, lastKey) {
			if !entry.Tombstone {
				if err := w.Write(entry.Key, entry.Value, false); err != nil {
					closeAll(sources)
					return err
				}
			}
			lastKey = append([]byte(nil), entry.Key...)
		}

		if top.iter.Next() {
			top.current = top.iter.Entry()
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}

	closeAll(sources)

	reader, err := w.Finalize()
	if err != nil {
		return err
	}

	old := e.sstables
	e.sstables = []*sstable.Reader{reader}

	for _, sst := range old {
		os.Remove(sst.Path())
	}

	return nil
}

func closeAll(sources []*mergeSource) {
	for _, s := range sources {
		s.iter.Close()
	}
}
