package engine

import "github.com/mnohosten/tidekv/pkg/sstable"

// maybeFlushLocked triggers a flush when the memtable has crossed its
// configured size threshold. Caller holds mu.
func (e *Engine) maybeFlushLocked() error {
	if e.mem.Len() < e.memtableSize {
		return nil
	}
	return e.flushLocked()
}

// flushLocked drains the memtable into a new SSTable, installs it at the
// newest end of the live list, clears the memtable and truncates the WAL.
// If that pushes the live list past the compaction threshold, compaction
// runs synchronously before returning — the documented trade-off of
// running compaction on the calling thread while holding the engine lock
// (spec.md §4.6.2-3, §5, §9 Open Question). Caller holds mu.
func (e *Engine) flushLocked() error {
	entries := e.mem.IterSorted()
	if len(entries) == 0 {
		return nil
	}

	generation := e.nextGeneration
	e.nextGeneration++

	w, err := sstable.NewWriter(e.dataDir, generation)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if err := w.Write(ent.Key, ent.Payload.Value, ent.Payload.IsTombstone); err != nil {
			return err
		}
	}
	reader, err := w.Finalize()
	if err != nil {
		return err
	}

	e.sstables = append([]*sstable.Reader{reader}, e.sstables...)
	e.mem.Clear()

	if err := e.log.Truncate(); err != nil {
		return err
	}

	if len(e.sstables) > e.compactionThreshold {
		return e.compactLocked()
	}
	return nil
}
