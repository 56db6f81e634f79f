package capability

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/meshgate/meshgate/gateway"
	"github.com/meshgate/meshgate/shared"
	"github.com/meshgate/meshgate/shared/config"
	"github.com/meshgate/meshgate/shared/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway(t *testing.T, extra ...gateway.ICapability) *gateway.Manager {
	t.Helper()
	manager, err := gateway.NewManager(zap.NewNop(), config.NewInternalConfig(), nil)
	require.NoError(t, err)
	manager.AddCapability(NewBase(zap.NewNop(), manager))
	manager.AddCapability(extra...)
	return manager
}

func newRequest(t *testing.T, method string, params interface{}) *shared.JSONRPCRequest {
	t.Helper()
	req := &shared.JSONRPCRequest{
		JSONRPC: shared.JSONRPCVersion,
		ID:      &shared.RequestID{Value: float64(1)},
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		rawMsg := json.RawMessage(raw)
		req.Params = &rawMsg
	}
	return req
}

func initializeConn(t *testing.T, manager *gateway.Manager) *gateway.Conn {
	t.Helper()
	conn := manager.GetOrCreateConn("")
	_, rpcErr := manager.Dispatch(context.Background(), conn, newRequest(t, "initialize", schema.InitializeParams{
		ProtocolVersion: schema.ProtocolVersion,
		ClientInfo:      schema.Implementation{Name: "test-client", Version: "1.0.0"},
	}))
	require.Nil(t, rpcErr)
	return conn
}

func TestInitialize(t *testing.T) {
	manager := newTestGateway(t)
	conn := manager.GetOrCreateConn("")

	result, rpcErr := manager.Dispatch(context.Background(), conn, newRequest(t, "initialize", schema.InitializeParams{
		ProtocolVersion: schema.ProtocolVersion,
		ClientInfo:      schema.Implementation{Name: "test-client", Version: "1.0.0"},
	}))
	require.Nil(t, rpcErr)

	initResult, ok := result.(schema.InitializeResult)
	require.True(t, ok)
	assert.Equal(t, schema.ProtocolVersion, initResult.ProtocolVersion)
	assert.Equal(t, "meshgate", initResult.ServerInfo.Name)

	assert.Equal(t, gateway.StatusInitialized, conn.Status())
	assert.Equal(t, "test-client", conn.ClientInfo().Name)
	assert.Equal(t, schema.ProtocolVersion, conn.ProtocolVersion())
}

func TestInitializeUnsupportedVersion(t *testing.T) {
	manager := newTestGateway(t)
	conn := manager.GetOrCreateConn("")

	_, rpcErr := manager.Dispatch(context.Background(), conn, newRequest(t, "initialize", schema.InitializeParams{
		ProtocolVersion: "1999-01-01",
		ClientInfo:      schema.Implementation{Name: "old-client"},
	}))
	require.NotNil(t, rpcErr)
	assert.Equal(t, shared.JSONRPCErrorInvalidParams, rpcErr.Code)

	data, ok := rpcErr.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []string{schema.ProtocolVersion}, data["supported"])

	// The rejection leaves the connection uninitialized, so a corrected
	// handshake can follow on the same connection.
	assert.Equal(t, gateway.StatusUninitialized, conn.Status())

	_, rpcErr = manager.Dispatch(context.Background(), conn, newRequest(t, "initialize", schema.InitializeParams{
		ProtocolVersion: schema.ProtocolVersion,
		ClientInfo:      schema.Implementation{Name: "old-client"},
	}))
	require.Nil(t, rpcErr)
	assert.Equal(t, gateway.StatusInitialized, conn.Status())
}

func TestInitializeMissingParams(t *testing.T) {
	manager := newTestGateway(t)
	conn := manager.GetOrCreateConn("")

	_, rpcErr := manager.Dispatch(context.Background(), conn, newRequest(t, "initialize", nil))
	require.NotNil(t, rpcErr)
	assert.Equal(t, shared.JSONRPCErrorInvalidParams, rpcErr.Code)
}

func TestPing(t *testing.T) {
	manager := newTestGateway(t)

	// Ping is gated behind the handshake like every other method.
	conn := manager.GetOrCreateConn("")
	_, rpcErr := manager.Dispatch(context.Background(), conn, newRequest(t, "ping", nil))
	require.NotNil(t, rpcErr)
	assert.Equal(t, shared.JSONRPCErrorNotInitialized, rpcErr.Code)

	conn = initializeConn(t, manager)
	result, rpcErr := manager.Dispatch(context.Background(), conn, newRequest(t, "ping", nil))
	require.Nil(t, rpcErr)
	assert.Equal(t, map[string]interface{}{}, result)
}
