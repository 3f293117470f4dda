package server

import "time"

// Config holds server configuration settings.
type Config struct {
	Host string // Server host address
	Port int    // TCP port speaking the newline-delimited JSON protocol

	HealthHost string // Health/readiness HTTP host address
	HealthPort int    // Health/readiness HTTP port (0 disables the health mux)

	DataDir             string
	MemtableSize        int
	CompactionThreshold int

	ReadTimeout  time.Duration // Per-connection read timeout
	WriteTimeout time.Duration // Per-connection write timeout

	MaxRequestSize int64 // Maximum request line size in bytes
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:                "localhost",
		Port:                6380,
		HealthHost:          "localhost",
		HealthPort:          6381,
		DataDir:             "./data",
		MemtableSize:        1000,
		CompactionThreshold: 10,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		MaxRequestSize:      1 * 1024 * 1024, // 1MB
	}
}
