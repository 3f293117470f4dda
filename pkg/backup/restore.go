package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// ErrDestinationNotEmpty is returned by Restore when destDir already
// contains files; restoring into a non-empty directory risks silently
// mixing two generations of engine state, so it is rejected as an
// argument error rather than attempted.
var ErrDestinationNotEmpty = errors.New("backup: destination directory is not empty")

// Restore decompresses and untars archivePath into destDir, which must be
// empty (or not yet exist). It is the inverse of Snapshot.
func Restore(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("backup: create destination directory: %w", err)
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return fmt.Errorf("backup: read destination directory: %w", err)
	}
	if len(entries) > 0 {
		return ErrDestinationNotEmpty
	}

	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("backup: open archive: %w", err)
	}
	defer in.Close()

	zr, err := zstd.NewReader(in)
	if err != nil {
		return fmt.Errorf("backup: create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("backup: read tar entry: %w", err)
		}
		if !engineFile(hdr.Name) {
			continue
		}

		path := filepath.Join(destDir, hdr.Name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return fmt.Errorf("backup: create %s: %w", hdr.Name, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return fmt.Errorf("backup: write %s: %w", hdr.Name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("backup: close %s: %w", hdr.Name, err)
		}
	}

	return nil
}
