package engine

import (
	"bytes"
	"sort"

	"github.com/mnohosten/tidekv/pkg/memtable"
)

// rangeSource is one already-sorted, already-filtered-to-[start,end]
// stream participating in the range merge: index 0 is the memtable (the
// newest source), and each following index is one SSTable in newest-first
// order.
type rangeSource struct {
	entries []sourceEntry
	pos     int
}

type sourceEntry struct {
	key       []byte
	value     []byte
	tombstone bool
}

func (s *rangeSource) peek() (sourceEntry, bool) {
	if s.pos >= len(s.entries) {
		return sourceEntry{}, false
	}
	return s.entries[s.pos], true
}

// mergeRangeLocked performs the streaming k-way merge described in
// spec.md §4.6: one sorted stream per source (memtable first, then every
// SSTable newest to oldest), always taking the smallest key; on a tie the
// newest source's payload wins and the rest are discarded; a tombstone as
// the winning payload suppresses the key entirely. Caller holds mu.
func (e *Engine) mergeRangeLocked(start, end []byte) ([]RangeEntry, error) {
	sources := make([]*rangeSource, 0, len(e.sstables)+1)
	sources = append(sources, &rangeSource{entries: memtableRangeEntries(e.mem, start, end)})

	for _, sst := range e.sstables {
		recs, err := sst.Range(start, end)
		if err != nil {
			return nil, err
		}
		entries := make([]sourceEntry, len(recs))
		for i, r := range recs {
			entries[i] = sourceEntry{key: r.Key, value: r.Value, tombstone: r.Tombstone}
		}
		sources = append(sources, &rangeSource{entries: entries})
	}

	var out []RangeEntry
	for {
		// Find the smallest current key across all sources.
		var minKey []byte
		found := false
		for _, s := range sources {
			if e, ok := s.peek(); ok {
				if !found || bytes.Compare(e.key, minKey) < 0 {
					minKey = e.key
					found = true
				}
			}
		}
		if !found {
			break
		}

		// The first source (in newest-first order) holding minKey wins;
		// every source holding it is advanced past it.
		var winner sourceEntry
		haveWinner := false
		for _, s := range sources {
			e, ok := s.peek()
			if !ok || !bytes.Equal(e.key, minKey) {
				continue
			}
			if !haveWinner {
				winner = e
				haveWinner = true
			}
			s.pos++
		}

		if haveWinner && !winner.tombstone {
			out = append(out, RangeEntry{Key: winner.key, Value: winner.value})
		}
	}

	return out, nil
}

// memtableRangeEntries returns the memtable's entries within [start, end],
// ascending, already sorted since IterSorted is.
func memtableRangeEntries(m *memtable.Memtable, start, end []byte) []sourceEntry {
	all := m.IterSorted()
	lo := sort.Search(len(all), func(i int) bool { return bytes.Compare(all[i].Key, start) >= 0 })
	var out []sourceEntry
	for i := lo; i < len(all); i++ {
		if bytes.Compare(all[i].Key, end) > 0 {
			break
		}
		out = append(out, sourceEntry{key: all[i].Key, value: all[i].Payload.Value, tombstone: all[i].Payload.IsTombstone})
	}
	return out
}
