package kvencoding

import (
	"bytes"
	"io"
	"testing"
)

func TestWALRecordRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		op    OpType
		key   []byte
		value []byte
	}{
		{"put", OpPut, []byte("alpha"), []byte("1")},
		{"put-empty-value", OpPut, []byte("k"), []byte("")},
		{"delete", OpDelete, []byte("beta"), nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded := EncodeWALRecord(c.op, c.key, c.value)
			rec, err := DecodeWALRecord(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if rec.Op != c.op {
				t.Fatalf("op: got %v want %v", rec.Op, c.op)
			}
			if !bytes.Equal(rec.Key, c.key) {
				t.Fatalf("key: got %q want %q", rec.Key, c.key)
			}
			if c.op == OpPut && !bytes.Equal(rec.Value, c.value) {
				t.Fatalf("value: got %q want %q", rec.Value, c.value)
			}
		})
	}
}

func TestDecodeWALRecordTornTail(t *testing.T) {
	full := EncodeWALRecord(OpPut, []byte("k"), []byte("value"))
	torn := full[:len(full)-2]

	if _, err := DecodeWALRecord(bytes.NewReader(torn)); err == nil {
		t.Fatal("expected an error decoding a torn record")
	}
}

func TestSSTableRecordRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		key       []byte
		value     []byte
		tombstone bool
	}{
		{"value", []byte("x"), []byte("a"), false},
		{"empty-value", []byte("x"), []byte(""), false},
		{"tombstone", []byte("x"), nil, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded := EncodeSSTableRecord(c.key, c.value, c.tombstone)
			rec, err := DecodeSSTableRecord(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(rec.Key, c.key) {
				t.Fatalf("key: got %q want %q", rec.Key, c.key)
			}
			if rec.Tombstone != c.tombstone {
				t.Fatalf("tombstone: got %v want %v", rec.Tombstone, c.tombstone)
			}
			if !c.tombstone && !bytes.Equal(rec.Value, c.value) {
				t.Fatalf("value: got %q want %q", rec.Value, c.value)
			}
		})
	}
}

func TestSSTableRecordDistinguishesTombstoneFromEmptyValue(t *testing.T) {
	emptyVal := EncodeSSTableRecord([]byte("x"), []byte(""), false)
	tomb := EncodeSSTableRecord([]byte("x"), nil, true)

	rec1, err := DecodeSSTableRecord(bytes.NewReader(emptyVal))
	if err != nil {
		t.Fatal(err)
	}
	rec2, err := DecodeSSTableRecord(bytes.NewReader(tomb))
	if err != nil {
		t.Fatal(err)
	}

	if rec1.Tombstone {
		t.Fatal("empty value misread as tombstone")
	}
	if !rec2.Tombstone {
		t.Fatal("tombstone misread as value")
	}
}

func TestDecodeSSTableRecordEOF(t *testing.T) {
	_, err := DecodeSSTableRecord(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
