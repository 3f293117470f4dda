package wal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mnohosten/tidekv/pkg/kvencoding"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	if err := l.AppendPut([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("append put: %v", err)
	}
	if err := l.AppendPut([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("append put: %v", err)
	}
	if err := l.AppendDelete([]byte("a")); err != nil {
		t.Fatalf("append delete: %v", err)
	}

	var got []Record
	if err := l.Replay(func(r Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].Op != kvencoding.OpPut || !bytes.Equal(got[0].Key, []byte("a")) || !bytes.Equal(got[0].Value, []byte("1")) {
		t.Fatalf("unexpected record 0: %+v", got[0])
	}
	if got[2].Op != kvencoding.OpDelete || !bytes.Equal(got[2].Key, []byte("a")) {
		t.Fatalf("unexpected record 2: %+v", got[2])
	}
}

func TestReplayDoesNotReappend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.AppendPut([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}

	count := 0
	if err := l.Replay(func(Record) error { count++; return nil }); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record after first replay, got %d", count)
	}

	count = 0
	if err := l.Replay(func(Record) error { count++; return nil }); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected replay to be idempotent, got %d records on second pass", count)
	}
}

func TestReplayIgnoresTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := l.AppendPut([]byte("whole"), []byte("record")); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-write: append a truncated second record directly.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	torn := kvencoding.EncodeWALRecord(kvencoding.OpPut, []byte("partial"), []byte("value"))
	if _, err := f.Write(torn[:len(torn)-3]); err != nil {
		t.Fatal(err)
	}
	f.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()

	var got []Record
	if err := l2.Replay(func(r Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("replay should tolerate a torn tail, got error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the complete record, got %d", len(got))
	}
}

func TestTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.AppendPut([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	empty, err := l.Empty()
	if err != nil {
		t.Fatal(err)
	}
	if empty {
		t.Fatal("expected non-empty WAL before truncate")
	}

	if err := l.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	empty, err = l.Empty()
	if err != nil {
		t.Fatal(err)
	}
	if !empty {
		t.Fatal("expected empty WAL after truncate")
	}

	if err := l.AppendPut([]byte("k2"), []byte("v2")); err != nil {
		t.Fatalf("append after truncate: %v", err)
	}
	var got []Record
	if err := l.Replay(func(r Record) error { got = append(got, r); return nil }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !bytes.Equal(got[0].Key, []byte("k2")) {
		t.Fatalf("unexpected replay after truncate: %+v", got)
	}
}
