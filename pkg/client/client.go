// Package client is a minimal synchronous client library for the storage
// engine's TCP newline-delimited JSON protocol.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Config holds configuration for the client.
type Config struct {
	// Host is the server hostname or IP address (default: "localhost")
	Host string
	// Port is the server's TCP data port (default: 6380)
	Port int
	// Timeout is the per-request round-trip timeout (default: 30s)
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:    "localhost",
		Port:    6380,
		Timeout: 30 * time.Second,
	}
}

// Client is a single persistent connection to a server, issuing one
// request/response round trip at a time.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial opens a connection using the given configuration. A nil config
// uses DefaultConfig().
func Dial(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 6380
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	conn, err := net.DialTimeout("tcp", addr, config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: config.Timeout,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

type wireRequest struct {
	Command string   `json:"command"`
	Key     string   `json:"key,omitempty"`
	Value   string   `json:"value,omitempty"`
	Keys    []string `json:"keys,omitempty"`
	Values  []string `json:"values,omitempty"`
	Start   string   `json:"start,omitempty"`
	End     string   `json:"end,omitempty"`
}

type wireResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Value   string `json:"value,omitempty"`
	Found   bool   `json:"found,omitempty"`
	Entries []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"entries,omitempty"`
}

// Entry is one key/value pair returned by GetRange.
type Entry struct {
	Key   string
	Value string
}

func (c *Client) roundTrip(req wireRequest) (wireResponse, error) {
	var resp wireResponse

	b, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("client: encode request: %w", err)
	}
	b = append(b, '\n')

	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.conn.Write(b); err != nil {
		return resp, fmt.Errorf("client: write: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return resp, fmt.Errorf("client: read: %w", err)
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return resp, fmt.Errorf("client: decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("client: server error: %s", resp.Message)
	}
	return resp, nil
}

// Put stores key/value.
func (c *Client) Put(key, value string) error {
	_, err := c.roundTrip(wireRequest{Command: "put", Key: key, Value: value})
	return err
}

// Get retrieves key. found is false if the key is absent or deleted.
func (c *Client) Get(key string) (value string, found bool, err error) {
	resp, err := c.roundTrip(wireRequest{Command: "get", Key: key})
	if err != nil {
		return "", false, err
	}
	return resp.Value, resp.Found, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Client) Delete(key string) error {
	_, err := c.roundTrip(wireRequest{Command: "delete", Key: key})
	return err
}

// BatchPut stores keys[i]/values[i] for every index as a single batch.
func (c *Client) BatchPut(keys, values []string) error {
	_, err := c.roundTrip(wireRequest{Command: "batch_put", Keys: keys, Values: values})
	return err
}

// GetRange returns every live key/value pair with start <= key <= end, in
// ascending order.
func (c *Client) GetRange(start, end string) ([]Entry, error) {
	resp, err := c.roundTrip(wireRequest{Command: "get_range", Start: start, End: end})
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(resp.Entries))
	for i, e := range resp.Entries {
		entries[i] = Entry{Key: e.Key, Value: e.Value}
	}
	return entries, nil
}
