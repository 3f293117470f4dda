package server

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func startTestServer(t *testing.T) (string, func()) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.HealthPort = 0

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.wg.Add(1)
			go srv.handleConn(conn)
		}
	}()

	addr := ln.Addr().String()
	return addr, func() {
		ln.Close()
		srv.eng.Close()
	}
}

func roundTrip(t *testing.T, conn net.Conn, req request) response {
	t.Helper()
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(append(b, '\n')); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatal(err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestProtocolPutGet(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, request{Command: "put", Key: "a", Value: "1"})
	if resp.Status != "ok" {
		t.Fatalf("put: %+v", resp)
	}

	resp = roundTrip(t, conn, request{Command: "get", Key: "a"})
	if resp.Status != "ok" || !resp.Found || resp.Value != "1" {
		t.Fatalf("get: %+v", resp)
	}

	resp = roundTrip(t, conn, request{Command: "get", Key: "missing"})
	if resp.Status != "ok" || resp.Found {
		t.Fatalf("get missing: %+v", resp)
	}
}

func TestProtocolDelete(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	roundTrip(t, conn, request{Command: "put", Key: "a", Value: "1"})
	resp := roundTrip(t, conn, request{Command: "delete", Key: "a"})
	if resp.Status != "ok" {
		t.Fatalf("delete: %+v", resp)
	}
	resp = roundTrip(t, conn, request{Command: "get", Key: "a"})
	if resp.Found {
		t.Fatalf("expected absent after delete: %+v", resp)
	}
}

func TestProtocolBatchPutAndRange(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, request{
		Command: "batch_put",
		Keys:    []string{"a", "b", "c"},
		Values:  []string{"1", "2", "3"},
	})
	if resp.Status != "ok" {
		t.Fatalf("batch_put: %+v", resp)
	}

	resp = roundTrip(t, conn, request{Command: "get_range", Start: "a", End: "c"})
	if resp.Status != "ok" || len(resp.Entries) != 3 {
		t.Fatalf("get_range: %+v", resp)
	}
	if resp.Entries[0].Key != "a" || resp.Entries[2].Key != "c" {
		t.Fatalf("get_range order: %+v", resp.Entries)
	}
}

func TestProtocolBatchPutMismatch(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, request{Command: "batch_put", Keys: []string{"a"}, Values: nil})
	if resp.Status != "error" {
		t.Fatalf("expected error status, got %+v", resp)
	}
}

func TestProtocolMalformedJSON(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("{not json}\n")); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatal(err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "error" {
		t.Fatalf("expected error status for malformed json, got %+v", resp)
	}
}

func TestProtocolUnknownCommand(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, request{Command: "frobnicate"})
	if resp.Status != "error" {
		t.Fatalf("expected error status, got %+v", resp)
	}
}
