package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mnohosten/tidekv/pkg/sstable"
)

// scanManifest rebuilds the live SSTable list from the data directory's
// filenames, newest generation first. There is no separate manifest file:
// installation always uses temp-name-then-rename and a compacted
// SSTable's inputs are only unlinked after its replacement is durably
// renamed in, so the directory listing alone is always a consistent view
// (spec.md §9, manifest Open Question).
func scanManifest(dir string) ([]*sstable.Reader, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("engine: read data dir: %w", err)
	}

	type found struct {
		generation int
		path       string
	}
	var tables []found
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var gen int
		if _, err := fmt.Sscanf(e.Name(), "sstable_%d.dat", &gen); err != nil {
			continue
		}
		// Guard against partially-matching names like "sstable_1.dat.tmp".
		if e.Name() != sstable.FileName(gen) {
			continue
		}
		tables = append(tables, found{generation: gen, path: filepath.Join(dir, e.Name())})
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i].generation > tables[j].generation })

	readers := make([]*sstable.Reader, 0, len(tables))
	nextGen := 0
	for _, tbl := range tables {
		r, err := sstable.Open(tbl.path, tbl.generation)
		if err != nil {
			return nil, 0, fmt.Errorf("engine: open %s: %w", tbl.path, err)
		}
		readers = append(readers, r)
		if tbl.generation+1 > nextGen {
			nextGen = tbl.generation + 1
		}
	}

	return readers, nextGen, nil
}
