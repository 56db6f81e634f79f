// Package transport exposes the gateway over HTTP: a unary JSON-RPC
// endpoint, a line-delimited-JSON streaming variant of the same method
// surface, and plain GET health/status endpoints for orchestration.
package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/meshgate/meshgate/gateway"
	"github.com/meshgate/meshgate/memory"
	"github.com/meshgate/meshgate/shared/config"
	"go.uber.org/zap"
)

const (
	RPCPath    = "/rpc"
	StreamPath = "/rpc/stream"
	StatusPath = "/status"
	HealthPath = "/healthz"
	ReadyPath  = "/readyz"

	// ConnHeader correlates HTTP requests with a gateway connection. The
	// server assigns an id on first contact and echoes it on every
	// response; clients send it back to continue the same connection.
	ConnHeader = "Mg-Connection-Id"

	contentTypeJSON = "application/json"
)

// Transport wires the gateway manager to HTTP handlers.
type Transport struct {
	manager *gateway.Manager
	logger  *zap.Logger
	config  config.IConfig
	memory  *memory.Client // optional; nil when no memory service is configured

	started         time.Time
	cleanupInterval time.Duration
	connTimeout     time.Duration
}

// TransportOption configures the Transport.
type TransportOption func(*Transport) error

// WithMemoryClient attaches the memory-service client probed by /status.
func WithMemoryClient(client *memory.Client) TransportOption {
	return func(t *Transport) error {
		t.memory = client
		return nil
	}
}

// WithConnTimeout sets the idle timeout for gateway connections.
func WithConnTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) error {
		if timeout <= 0 {
			return errors.New("connection timeout must be positive")
		}
		t.connTimeout = timeout
		return nil
	}
}

// WithCleanupInterval sets how often idle connections are collected.
func WithCleanupInterval(interval time.Duration) TransportOption {
	return func(t *Transport) error {
		if interval <= 0 {
			return errors.New("cleanup interval must be positive")
		}
		t.cleanupInterval = interval
		return nil
	}
}

// New creates the HTTP transport.
func New(manager *gateway.Manager, logger *zap.Logger, cfg config.IConfig, options ...TransportOption) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if manager == nil {
		return nil, errors.New("gateway manager cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	t := &Transport{
		manager:         manager,
		logger:          logger.Named("transport"),
		config:          cfg,
		started:         time.Now(),
		cleanupInterval: 5 * time.Minute,
		connTimeout:     30 * time.Minute,
	}
	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}

	go t.startConnCleanup()
	return t, nil
}

// RegisterHandlers attaches all endpoints to the mux.
func (t *Transport) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc(RPCPath, t.HandleRPC())
	mux.HandleFunc(StreamPath, t.HandleStream())
	mux.HandleFunc(StatusPath, t.HandleStatus())
	mux.HandleFunc(HealthPath, t.HandleHealth())
	mux.HandleFunc(ReadyPath, t.HandleReady())
	t.logger.Info("Registered HTTP handlers",
		zap.String("rpc", RPCPath),
		zap.String("stream", StreamPath),
	)
}

// startConnCleanup periodically closes idle gateway connections.
func (t *Transport) startConnCleanup() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		t.manager.CleanupIdleConns(t.connTimeout)
	}
}

// getConn resolves the connection for a request and echoes its id.
func (t *Transport) getConn(w http.ResponseWriter, r *http.Request) *gateway.Conn {
	conn := t.manager.GetOrCreateConn(r.Header.Get(ConnHeader))
	w.Header().Set(ConnHeader, conn.ID)
	return conn
}
