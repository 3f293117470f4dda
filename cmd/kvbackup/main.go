// Command kvbackup snapshots or restores a storage engine's data
// directory using pkg/backup.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mnohosten/tidekv/pkg/backup"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  kvbackup snapshot -data-dir=./data -archive=./snapshot.tar.zst
  kvbackup restore  -archive=./snapshot.tar.zst -data-dir=./restored
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "snapshot":
		runSnapshot(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func runSnapshot(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "Engine data directory to snapshot")
	archive := fs.String("archive", "./snapshot.tar.zst", "Output archive path")
	fs.Parse(args)

	fmt.Printf("📦 Snapshotting %s -> %s\n", *dataDir, *archive)
	if err := backup.Snapshot(*dataDir, *archive); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Snapshot failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Snapshot complete")
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	archive := fs.String("archive", "./snapshot.tar.zst", "Archive path to restore from")
	dataDir := fs.String("data-dir", "./restored", "Destination data directory (must be empty)")
	fs.Parse(args)

	fmt.Printf("📦 Restoring %s -> %s\n", *archive, *dataDir)
	if err := backup.Restore(*archive, *dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Restore complete")
}
