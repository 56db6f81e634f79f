package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/meshgate/meshgate/comm"
	"github.com/meshgate/meshgate/shared"
	"github.com/meshgate/meshgate/shared/config"
	"github.com/meshgate/meshgate/shared/schema"
	"go.uber.org/zap"
)

// Handler processes one decoded request against a connection. Returned
// errors are translated into JSON-RPC error objects by the dispatcher; a
// handler may return *shared.JSONRPCError directly to control the code.
type Handler func(ctx context.Context, conn *Conn, params *json.RawMessage) (interface{}, error)

// ICapability groups a set of related method handlers, mirroring how the
// server advertises feature groups during initialize.
type ICapability interface {
	GetHandlers() map[string]Handler
	SetCapabilities(caps *schema.ServerCapabilities)
}

// Manager owns the connection table and the method dispatch table. All
// wire requests flow through Dispatch, which enforces the per-connection
// state machine before any handler runs.
type Manager struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	handlers map[string]Handler
	caps     schema.ServerCapabilities

	serverInfo schema.Implementation
	timeout    time.Duration
	clock      comm.Clock
	logger     *zap.Logger
}

// NewManager creates a manager with identity and timeouts from config.
func NewManager(logger *zap.Logger, cfg config.IConfig, clock comm.Clock) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = comm.SystemClock()
	}
	serverName, err := cfg.ServerName()
	if err != nil {
		return nil, fmt.Errorf("failed to get server name from config: %w", err)
	}
	serverVersion, err := cfg.ServerVersion()
	if err != nil {
		return nil, fmt.Errorf("failed to get server version from config: %w", err)
	}
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, fmt.Errorf("failed to get request timeout from config: %w", err)
	}

	return &Manager{
		conns:      make(map[string]*Conn),
		handlers:   make(map[string]Handler),
		serverInfo: schema.Implementation{Name: serverName, Version: serverVersion},
		timeout:    timeout,
		clock:      clock,
		logger:     logger.Named("gateway"),
	}, nil
}

// AddCapability merges the capability's handlers into the dispatch table
// and lets it mark its presence in the advertised server capabilities.
func (m *Manager) AddCapability(capabilities ...ICapability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, capability := range capabilities {
		capability.SetCapabilities(&m.caps)
		for method, handler := range capability.GetHandlers() {
			m.handlers[method] = handler
			m.logger.Debug("Registered method handler",
				zap.String("capability", fmt.Sprintf("%T", capability)),
				zap.String("method", method),
			)
		}
	}
}

// ServerInfo returns the server identity reported during initialize.
func (m *Manager) ServerInfo() schema.Implementation {
	return m.serverInfo
}

// Capabilities returns the advertised server capabilities.
func (m *Manager) Capabilities() schema.ServerCapabilities {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caps
}

// MethodCount reports the size of the dispatch table; the readiness probe
// uses it to confirm wiring happened.
func (m *Manager) MethodCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

// GetOrCreateConn resolves a connection id to its state, creating a fresh
// uninitialized connection for an empty or unknown id.
func (m *Manager) GetOrCreateConn(id string) *Conn {
	if id == "" {
		id = m.clock.NewID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok {
		conn = newConn(id, m.logger)
		m.conns[id] = conn
		m.logger.Debug("Created connection", zap.String("connID", id))
	}
	return conn
}

// GetConn returns an existing connection.
func (m *Manager) GetConn(id string) (*Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[id]
	if !ok {
		return nil, fmt.Errorf("connection not found: %s", id)
	}
	return conn, nil
}

// CloseConn marks a connection closed and drops it from the table.
func (m *Manager) CloseConn(id string) {
	m.mu.Lock()
	conn, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if ok {
		conn.Close()
		m.logger.Debug("Closed connection", zap.String("connID", id))
	}
}

// CleanupIdleConns closes connections with no activity inside timeout.
func (m *Manager) CleanupIdleConns(timeout time.Duration) {
	cutoff := time.Now().Add(-timeout)

	m.mu.Lock()
	var stale []*Conn
	for id, conn := range m.conns {
		if conn.LastActivity().Before(cutoff) {
			stale = append(stale, conn)
			delete(m.conns, id)
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		conn.Close()
		m.logger.Debug("Closed idle connection", zap.String("connID", conn.ID))
	}
}

// Dispatch runs one request through the state machine and its handler,
// bounded by the configured per-request deadline. The result is either a
// payload or a JSON-RPC error object; the connection survives all errors.
func (m *Manager) Dispatch(ctx context.Context, conn *Conn, req *shared.JSONRPCRequest) (interface{}, *shared.JSONRPCError) {
	conn.UpdateLastActivity()
	logger := m.logger.With(zap.String("connID", conn.ID), zap.String("method", req.Method))

	m.mu.RLock()
	handler, exists := m.handlers[req.Method]
	m.mu.RUnlock()
	if !exists {
		logger.Warn("Method not found")
		return nil, &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	switch conn.Status() {
	case StatusClosed:
		return nil, &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorInvalidRequest,
			Message: "Connection is closed",
		}
	case StatusUninitialized:
		if req.Method != "initialize" {
			logger.Warn("Method called before initialize")
			return nil, &shared.JSONRPCError{
				Code:    shared.JSONRPCErrorNotInitialized,
				Message: fmt.Sprintf("Method not allowed before initialize: %s", req.Method),
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in handler", zap.Any("panic", r))
				done <- outcome{err: fmt.Errorf("internal error: %v", r)}
			}
		}()
		result, err := handler(ctx, conn, req.Params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			rpcErr := ToJSONRPCError(out.err)
			if rpcErr.Code != shared.JSONRPCErrorRateLimited {
				logger.Debug("Handler returned error", zap.Error(out.err))
			}
			return nil, rpcErr
		}
		return out.result, nil
	case <-ctx.Done():
		logger.Warn("Request deadline exceeded", zap.Duration("timeout", m.timeout))
		return nil, &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorTimeout,
			Message: "Request timed out",
		}
	}
}
