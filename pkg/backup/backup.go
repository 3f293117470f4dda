// Package backup snapshots a storage engine's data directory (its WAL and
// SSTable files) into a single zstd-compressed archive, and restores an
// archive back into an empty directory.
package backup

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// engineFile reports whether name is one of the files the engine owns
// inside its data directory: the write-ahead log or an SSTable.
func engineFile(name string) bool {
	if name == "wal.log" {
		return true
	}
	return strings.HasPrefix(name, "sstable_") && strings.HasSuffix(name, ".dat")
}

// Snapshot tars every engine-owned file under dataDir and streams the tar
// through a zstd encoder into archivePath. The caller is responsible for
// ensuring the engine's WAL is quiescent (closed, or freshly flushed) so
// the snapshot is a consistent point-in-time image; Snapshot itself takes
// no lock on the engine.
func Snapshot(dataDir, archivePath string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("backup: read data dir: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return fmt.Errorf("backup: create archive directory: %w", err)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("backup: create archive: %w", err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("backup: create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	for _, ent := range entries {
		if ent.IsDir() || !engineFile(ent.Name()) {
			continue
		}
		if err := addFileToTar(tw, dataDir, ent.Name()); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("backup: finalize tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("backup: finalize zstd stream: %w", err)
	}
	return nil
}

func addFileToTar(tw *tar.Writer, dataDir, name string) error {
	path := filepath.Join(dataDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("backup: stat %s: %w", name, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("backup: build header for %s: %w", name, err)
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("backup: write header for %s: %w", name, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("backup: open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("backup: copy %s into archive: %w", name, err)
	}
	return nil
}
