package gateway

import (
	"sync"
	"time"

	"github.com/meshgate/meshgate/shared/schema"
	"go.uber.org/zap"
)

// ConnStatus is the protocol state of one client connection.
type ConnStatus int

const (
	StatusUninitialized ConnStatus = iota
	StatusInitialized
	StatusClosed
)

func (s ConnStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitialized:
		return "initialized"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// Conn tracks the handshake state and client identity of one logical
// connection. The transport correlates HTTP requests to a Conn through a
// connection id header.
type Conn struct {
	ID     string
	logger *zap.Logger

	mu              sync.RWMutex
	status          ConnStatus
	protocolVersion string
	clientInfo      schema.Implementation
	clientCaps      schema.ClientCapabilities
	lastActivity    time.Time
}

func newConn(id string, logger *zap.Logger) *Conn {
	return &Conn{
		ID:           id,
		logger:       logger,
		status:       StatusUninitialized,
		lastActivity: time.Now(),
	}
}

// Status returns the current protocol state.
func (c *Conn) Status() ConnStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Initialize records the negotiated handshake and moves the connection to
// the initialized state. Re-initializing an already-initialized connection
// replaces the recorded client identity.
func (c *Conn) Initialize(version string, info schema.Implementation, caps schema.ClientCapabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusInitialized {
		c.logger.Warn("Connection re-initialized",
			zap.String("connID", c.ID),
			zap.String("clientName", info.Name),
		)
	}
	c.status = StatusInitialized
	c.protocolVersion = version
	c.clientInfo = info
	c.clientCaps = caps
}

// Close marks the connection terminal. Further dispatches fail.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusClosed
}

// ProtocolVersion returns the negotiated protocol version, empty before
// initialization.
func (c *Conn) ProtocolVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.protocolVersion
}

// ClientInfo returns the client's reported identity.
func (c *Conn) ClientInfo() schema.Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientInfo
}

// ClientCapabilities returns the capabilities the client reported.
func (c *Conn) ClientCapabilities() schema.ClientCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientCaps
}

// UpdateLastActivity refreshes the idle timer.
func (c *Conn) UpdateLastActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// LastActivity returns the time of the most recent dispatch.
func (c *Conn) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}
