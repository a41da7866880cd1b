package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedServer runs an in-process NATS server with JetStream enabled. It
// backs development deployments without NATS_URL and the messaging tests.
type EmbeddedServer struct {
	server       *server.Server
	url          string
	storeDir     string
	ownsStoreDir bool
	logger       *slog.Logger
	shutdownOnce sync.Once
}

// ServerOption configures an EmbeddedServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	host         string
	port         int
	storeDir     string
	user         string
	password     string
	token        string
	readyTimeout time.Duration
	logger       *slog.Logger
}

// WithHost sets the listen address. Defaults to 127.0.0.1.
func WithHost(host string) ServerOption {
	return func(c *serverConfig) {
		c.host = host
	}
}

// WithPort sets the client port. Defaults to a random free port.
func WithPort(port int) ServerOption {
	return func(c *serverConfig) {
		c.port = port
	}
}

// WithStoreDir keeps JetStream data in dir. Without it a temporary directory
// is used and removed on shutdown.
func WithStoreDir(dir string) ServerOption {
	return func(c *serverConfig) {
		c.storeDir = dir
	}
}

// WithUserPassword requires clients to authenticate with user and password.
func WithUserPassword(user, password string) ServerOption {
	return func(c *serverConfig) {
		c.user = user
		c.password = password
	}
}

// WithToken requires clients to authenticate with token.
func WithToken(token string) ServerOption {
	return func(c *serverConfig) {
		c.token = token
	}
}

// WithReadyTimeout bounds how long startup waits for the server. Defaults to 5s.
func WithReadyTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.readyTimeout = d
	}
}

// WithServerLogger sets the logger used for lifecycle messages.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = logger
	}
}

// StartEmbeddedServer starts an embedded NATS server with JetStream enabled.
func StartEmbeddedServer(opts ...ServerOption) (*EmbeddedServer, error) {
	cfg := serverConfig{
		host:         "127.0.0.1",
		port:         server.RANDOM_PORT,
		readyTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	storeDir, ownsStoreDir := cfg.storeDir, false
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "assetlimits-nats-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream store dir: %w", err)
		}
		storeDir, ownsStoreDir = dir, true
	}

	s, err := server.NewServer(&server.Options{
		Host:          cfg.host,
		Port:          cfg.port,
		JetStream:     true,
		StoreDir:      storeDir,
		Username:      cfg.user,
		Password:      cfg.password,
		Authorization: cfg.token,
		NoSigs:        true,
		NoLog:         true,
	})
	if err != nil {
		if ownsStoreDir {
			os.RemoveAll(storeDir)
		}
		return nil, fmt.Errorf("failed to create embedded server: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(cfg.readyTimeout) {
		s.Shutdown()
		if ownsStoreDir {
			os.RemoveAll(storeDir)
		}
		return nil, errors.New("embedded NATS server not ready")
	}

	return &EmbeddedServer{
		server:       s,
		url:          s.ClientURL(),
		storeDir:     storeDir,
		ownsStoreDir: ownsStoreDir,
		logger:       cfg.logger,
	}, nil
}

// URL returns the connection URL for the embedded server.
func (e *EmbeddedServer) URL() string {
	return e.url
}

// Running reports whether the server still accepts connections.
func (e *EmbeddedServer) Running() bool {
	return e.server.Running()
}

// Shutdown stops the server, waiting at most five seconds. Safe to call
// multiple times.
func (e *EmbeddedServer) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.server.Shutdown()

		done := make(chan struct{})
		go func() {
			e.server.WaitForShutdown()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			e.logger.Warn("embedded NATS shutdown timed out", "timeout", 5*time.Second)
		}

		if e.ownsStoreDir {
			if err := os.RemoveAll(e.storeDir); err != nil {
				e.logger.Warn("failed to remove JetStream store dir", "dir", e.storeDir, "error", err)
			}
		}
	})
}

// Connect opens a plain client connection to the embedded server.
func (e *EmbeddedServer) Connect(opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(e.url, opts...)
}
