// Package daemon hosts the embedded NATS broker used when tminusd runs
// without an external queue. JetStream backs the provider-deletion sweep
// subjects, so worker crashes do not lose enqueued teardown work.
package daemon

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const (
	// DefaultNATSPort is the default TCP port for the embedded broker.
	DefaultNATSPort = 4222

	// DefaultNATSMaxMem is the JetStream memory limit (256 MiB).
	DefaultNATSMaxMem = 256 << 20

	// DefaultNATSMaxStore is the JetStream file storage limit (1 GiB).
	DefaultNATSMaxStore = 1 << 30
)

// NATSServer wraps an embedded NATS server with JetStream and provides
// lifecycle management.
type NATSServer struct {
	server *server.Server
	conn   *nats.Conn // in-process connection for the daemon's own queue
	port   int
}

// NATSConfig holds configuration for the embedded broker.
type NATSConfig struct {
	Port     int    // TCP port for worker connections (default 4222)
	StoreDir string // JetStream file storage directory
	Token    string // auth token for client connections; empty disables auth
}

// StartNATSServer creates and starts an embedded NATS server with
// JetStream, and opens an in-process connection for the daemon's own
// queue publisher.
func StartNATSServer(cfg NATSConfig) (*NATSServer, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultNATSPort
	}
	if err := os.MkdirAll(cfg.StoreDir, 0o700); err != nil {
		return nil, fmt.Errorf("create NATS store dir: %w", err)
	}

	opts := &server.Options{
		ServerName:         "tminusd",
		Host:               "0.0.0.0",
		Port:               cfg.Port,
		JetStream:          true,
		JetStreamMaxMemory: DefaultNATSMaxMem,
		JetStreamMaxStore:  DefaultNATSMaxStore,
		StoreDir:           cfg.StoreDir,
		NoLog:              true,
		NoSigs:             true,
	}
	if cfg.Token != "" {
		opts.Authorization = cfg.Token
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server failed to become ready within 10 seconds")
	}

	connectURL := fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port)
	connectOpts := []nats.Option{nats.Name("tminusd-internal")}
	if cfg.Token != "" {
		connectOpts = append(connectOpts, nats.Token(cfg.Token))
	}
	nc, err := nats.Connect(connectURL, connectOpts...)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("in-process NATS connection: %w", err)
	}

	return &NATSServer{server: ns, conn: nc, port: cfg.Port}, nil
}

// Conn returns the in-process connection.
func (n *NATSServer) Conn() *nats.Conn {
	return n.conn
}

// Port returns the TCP port the broker is listening on.
func (n *NATSServer) Port() int {
	return n.port
}

// Shutdown drains the in-process connection, then stops the server and
// waits for completion.
func (n *NATSServer) Shutdown() {
	if n.conn != nil {
		_ = n.conn.Drain()
		n.conn.Close()
	}
	if n.server != nil {
		n.server.Shutdown()
		n.server.WaitForShutdown()
	}
}
