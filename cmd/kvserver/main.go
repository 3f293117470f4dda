// Command kvserver runs the storage engine behind the TCP newline-JSON
// protocol and an HTTP liveness/readiness endpoint.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mnohosten/tidekv/pkg/server"
)

func main() {
	host := flag.String("host", "localhost", "TCP data port host address")
	port := flag.Int("port", 6380, "TCP data port")
	healthHost := flag.String("health-host", "localhost", "Health/readiness HTTP host address")
	healthPort := flag.Int("health-port", 6381, "Health/readiness HTTP port (0 disables it)")
	dataDir := flag.String("data-dir", "./data", "Data directory for engine storage")
	memtableSize := flag.Int("memtable-size", 1000, "Number of entries before a memtable flush")
	compactionThreshold := flag.Int("compaction-threshold", 10, "Number of live SSTables that triggers compaction")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-connection read/write timeout")
	flag.Parse()

	config := server.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.HealthHost = *healthHost
	config.HealthPort = *healthPort
	config.DataDir = *dataDir
	config.MemtableSize = *memtableSize
	config.CompactionThreshold = *compactionThreshold
	config.ReadTimeout = *timeout
	config.WriteTimeout = *timeout

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Server error: %v\n", err)
		os.Exit(1)
	}
}
