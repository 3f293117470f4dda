// Package server exposes a storage engine over two surfaces: a TCP
// listener speaking a newline-delimited JSON protocol for data operations,
// and a small chi-routed HTTP mux for operator liveness/readiness probes.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mnohosten/tidekv/pkg/engine"
)

// Server runs the TCP data protocol and the HTTP health mux over a single
// engine instance.
type Server struct {
	config *Config
	eng    *engine.Engine

	listener net.Listener
	router   *chi.Mux
	httpSrv  *http.Server

	wg            sync.WaitGroup
	listenerReady chan struct{}

	startTime time.Time
}

// New opens the engine at config.DataDir and prepares both surfaces. The
// engine is not started listening until Start is called.
func New(config *Config) (*Server, error) {
	eng, err := engine.Open(&engine.Config{
		DataDir:             config.DataDir,
		MemtableSize:        config.MemtableSize,
		CompactionThreshold: config.CompactionThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("server: open engine: %w", err)
	}

	srv := &Server{
		config:        config,
		eng:           eng,
		router:        chi.NewRouter(),
		startTime:     time.Now(),
		listenerReady: make(chan struct{}),
	}

	srv.setupMiddleware()
	srv.setupHealthRoutes()

	if config.HealthPort != 0 {
		srv.httpSrv = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", config.HealthHost, config.HealthPort),
			Handler:      srv.router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		}
	}

	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupHealthRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		stats := s.eng.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":           "ready",
			"memtable_entries": stats.MemtableEntries,
			"num_sstables":     stats.NumSSTables,
		})
	})
}

// Start binds the TCP data port (and the HTTP health port, if configured)
// and blocks, accepting connections, until a shutdown signal arrives or an
// unrecoverable listener error occurs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	close(s.listenerReady)

	fmt.Printf("🚀 tidekv server listening on tcp://%s\n", addr)
	fmt.Printf("📁 Data directory: %s\n", s.config.DataDir)

	errChan := make(chan error, 2)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				errChan <- fmt.Errorf("accept: %w", err)
				return
			}
			s.wg.Add(1)
			go s.handleConn(conn)
		}
	}()

	if s.httpSrv != nil {
		fmt.Printf("❤️  Health endpoint listening on http://%s/healthz\n", s.httpSrv.Addr)
		go func() {
			if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("health server: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\n⚠️  Received signal: %v\n", sig)
		return s.Shutdown()
	}
}

// Addr blocks until the TCP data listener is bound and returns its
// address. Useful for tests and for operators that start the server with
// port 0 for an OS-assigned port.
func (s *Server) Addr() net.Addr {
	<-s.listenerReady
	return s.listener.Addr()
}

// Shutdown stops accepting new connections, waits for in-flight
// connections to finish, shuts down the health mux, and closes the
// engine (flushing any pending memtable contents).
func (s *Server) Shutdown() error {
	fmt.Println("🛑 Shutting down server...")

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			fmt.Printf("❌ health server shutdown error: %v\n", err)
		}
	}

	if err := s.eng.Close(); err != nil {
		fmt.Printf("❌ engine close error: %v\n", err)
		return err
	}
	fmt.Println("✅ shutdown complete")
	return nil
}

// handleConn services one client connection: it reads newline-delimited
// JSON requests and writes newline-delimited JSON responses until the
// connection is closed by the peer or an unrecoverable I/O error occurs.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, 64*1024)
	writer := bufio.NewWriter(conn)

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		line, err := reader.ReadBytes('\n')
		if len(line) == 0 {
			return
		}

		var resp response
		if s.config.MaxRequestSize > 0 && int64(len(line)) > s.config.MaxRequestSize {
			resp = errResponse(fmt.Sprintf("request exceeds %d bytes", s.config.MaxRequestSize))
		} else {
			resp = s.handleLine(line)
		}

		if s.config.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		}
		if encErr := json.NewEncoder(writer).Encode(resp); encErr != nil {
			return
		}
		if flushErr := writer.Flush(); flushErr != nil {
			return
		}

		if err != nil {
			return
		}
	}
}

// handleLine decodes and dispatches a single request line. A malformed
// request (bad JSON, unknown command, wrong field types) is rejected here
// with a status:"error" response and never reaches the engine.
func (s *Server) handleLine(line []byte) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return errResponse(fmt.Sprintf("malformed request: %v", err))
	}

	switch req.Command {
	case "put":
		return s.handlePut(req)
	case "get":
		return s.handleGet(req)
	case "delete":
		return s.handleDelete(req)
	case "batch_put":
		return s.handleBatchPut(req)
	case "get_range":
		return s.handleGetRange(req)
	default:
		return errResponse(fmt.Sprintf("unknown command: %q", req.Command))
	}
}

func (s *Server) handlePut(req request) response {
	if err := s.eng.Put([]byte(req.Key), []byte(req.Value)); err != nil {
		return errResponse(err.Error())
	}
	return okResponse()
}

func (s *Server) handleGet(req request) response {
	value, found, err := s.eng.Get([]byte(req.Key))
	if err != nil {
		return errResponse(err.Error())
	}
	resp := okResponse()
	resp.Found = found
	if found {
		resp.Value = string(value)
	}
	return resp
}

func (s *Server) handleDelete(req request) response {
	if err := s.eng.Delete([]byte(req.Key)); err != nil {
		return errResponse(err.Error())
	}
	return okResponse()
}

func (s *Server) handleBatchPut(req request) response {
	if len(req.Keys) != len(req.Values) {
		return errResponse("keys and values length mismatch")
	}
	keys := make([][]byte, len(req.Keys))
	values := make([][]byte, len(req.Values))
	for i := range req.Keys {
		keys[i] = []byte(req.Keys[i])
		values[i] = []byte(req.Values[i])
	}
	if err := s.eng.BatchPut(keys, values); err != nil {
		return errResponse(err.Error())
	}
	return okResponse()
}

func (s *Server) handleGetRange(req request) response {
	entries, err := s.eng.GetRange([]byte(req.Start), []byte(req.End))
	if err != nil {
		return errResponse(err.Error())
	}
	resp := okResponse()
	resp.Entries = make([]responseEntry, len(entries))
	for i, e := range entries {
		resp.Entries[i] = responseEntry{Key: string(e.Key), Value: string(e.Value)}
	}
	return resp
}
