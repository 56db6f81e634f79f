// Package capability implements the method handler groups dispatched by
// the gateway: the initialize handshake, the tool surface and the
// agent-communication methods.
package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meshgate/meshgate/gateway"
	"github.com/meshgate/meshgate/shared"
	"github.com/meshgate/meshgate/shared/schema"
	"go.uber.org/zap"
)

// Protocol versions this server accepts during initialize.
var supportedVersions = map[string]bool{
	schema.ProtocolVersion: true,
}

var _ gateway.ICapability = (*BaseCapability)(nil)

// BaseCapability provides the fundamental methods: initialize and ping.
type BaseCapability struct {
	logger   *zap.Logger
	manager  *gateway.Manager
	handlers map[string]gateway.Handler
}

// NewBase creates a new BaseCapability.
func NewBase(logger *zap.Logger, manager *gateway.Manager) *BaseCapability {
	bc := &BaseCapability{
		logger:  logger.Named("base"),
		manager: manager,
	}
	bc.handlers = map[string]gateway.Handler{
		"initialize": bc.handleInitialize,
		"ping":       bc.handlePing,
	}
	return bc
}

func (bc *BaseCapability) GetHandlers() map[string]gateway.Handler {
	return bc.handlers
}

func (bc *BaseCapability) SetCapabilities(s *schema.ServerCapabilities) {
	// The handshake is implicit; nothing to advertise.
}

// handleInitialize validates the requested protocol version and completes
// the handshake. An unsupported version is a protocol error that leaves
// the connection uninitialized, so a corrected initialize can follow on
// the same connection.
func (bc *BaseCapability) handleInitialize(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	logger := bc.logger.With(zap.String("connID", conn.ID))

	if params == nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "Missing params"}
	}
	var p schema.InitializeParams
	if err := json.Unmarshal(*params, &p); err != nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("Invalid parameters: %v", err)}
	}

	if !supportedVersions[p.ProtocolVersion] {
		logger.Warn("Unsupported protocol version requested",
			zap.String("requestedVersion", p.ProtocolVersion),
			zap.String("clientName", p.ClientInfo.Name),
		)
		return nil, &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorInvalidParams,
			Message: fmt.Sprintf("Unsupported protocol version: %q", p.ProtocolVersion),
			Data:    map[string]interface{}{"supported": []string{schema.ProtocolVersion}},
		}
	}

	conn.Initialize(p.ProtocolVersion, p.ClientInfo, p.Capabilities)
	logger.Info("Connection initialized",
		zap.String("protocolVersion", p.ProtocolVersion),
		zap.String("clientName", p.ClientInfo.Name),
		zap.String("clientVersion", p.ClientInfo.Version),
	)

	return schema.InitializeResult{
		ProtocolVersion: p.ProtocolVersion,
		Capabilities:    bc.manager.Capabilities(),
		ServerInfo:      bc.manager.ServerInfo(),
	}, nil
}

func (bc *BaseCapability) handlePing(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	return map[string]interface{}{}, nil
}
