package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meshgate/meshgate/comm"
	"github.com/meshgate/meshgate/gateway"
	"github.com/meshgate/meshgate/gateway/capability"
	"github.com/meshgate/meshgate/shared"
	"github.com/meshgate/meshgate/shared/config"
	"github.com/meshgate/meshgate/shared/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	server *httptest.Server
	connID string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.NewInternalConfig()

	registry := comm.NewRegistry(nil, logger, nil)
	discovery := comm.NewDiscovery(registry, logger, nil)
	sessions := comm.NewSessionStore(registry, nil, logger, nil)
	limiter := comm.NewRateLimiter(100, time.Minute, logger)
	engine := comm.NewEngine(sessions, registry, limiter, nil, logger, nil)

	manager, err := gateway.NewManager(logger, cfg, nil)
	require.NoError(t, err)
	manager.AddCapability(
		capability.NewBase(logger, manager),
		capability.NewTools(logger),
		capability.NewComm(logger, registry, discovery, sessions, engine),
	)

	httpTransport, err := New(manager, logger, cfg)
	require.NoError(t, err)

	mux := http.NewServeMux()
	httpTransport.RegisterHandlers(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testServer{server: server}
}

func (ts *testServer) post(t *testing.T, path string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.connID != "" {
		req.Header.Set(ConnHeader, ts.connID)
	}
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	if id := resp.Header.Get(ConnHeader); id != "" {
		ts.connID = id
	}
	return resp
}

func (ts *testServer) rpc(t *testing.T, method string, params interface{}) map[string]interface{} {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp := ts.post(t, RPCPath, string(body))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func (ts *testServer) initialize(t *testing.T) {
	t.Helper()
	envelope := ts.rpc(t, "initialize", schema.InitializeParams{
		ProtocolVersion: schema.ProtocolVersion,
		ClientInfo:      schema.Implementation{Name: "test-client", Version: "1.0.0"},
	})
	require.Contains(t, envelope, "result")
	require.NotEmpty(t, ts.connID)
}

func TestRPCEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	envelope := ts.rpc(t, "registerAgent", map[string]interface{}{
		"id":           "a1",
		"name":         "researcher",
		"capabilities": []string{"research"},
	})
	result, ok := envelope["result"].(map[string]interface{})
	require.True(t, ok, "expected result, got %v", envelope)
	assert.Equal(t, "a1", result["id"])
	assert.Equal(t, "online", result["health"])

	envelope = ts.rpc(t, "getAgent", map[string]interface{}{"id": "a1"})
	result = envelope["result"].(map[string]interface{})
	assert.Equal(t, "researcher", result["name"])
}

func TestRPCErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	envelope := ts.rpc(t, "getAgent", map[string]interface{}{"id": "ghost"})
	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(shared.JSONRPCErrorNotFound), errObj["code"])
}

func TestRPCRequiresInitialize(t *testing.T) {
	ts := newTestServer(t)

	envelope := ts.rpc(t, "registerAgent", map[string]interface{}{"name": "x"})
	errObj, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(shared.JSONRPCErrorNotInitialized), errObj["code"])
}

func TestRPCParseError(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, RPCPath, "{not json")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	errObj := envelope["error"].(map[string]interface{})
	assert.Equal(t, float64(shared.JSONRPCErrorParseError), errObj["code"])
}

func TestRPCRejectsGet(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.server.Client().Get(ts.server.URL + RPCPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestConnHeaderIsEchoed(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)
	first := ts.connID

	// Follow-up requests continue the same connection.
	envelope := ts.rpc(t, "ping", nil)
	assert.Contains(t, envelope, "result")
	assert.Equal(t, first, ts.connID)
}

func streamEvents(t *testing.T, body []byte) []shared.StreamEvent {
	t.Helper()
	var events []shared.StreamEvent
	for _, line := range bytes.Split(bytes.TrimSpace(body), []byte("\n")) {
		var ev shared.StreamEvent
		require.NoError(t, json.Unmarshal(line, &ev), "line: %s", line)
		events = append(events, ev)
	}
	return events
}

func (ts *testServer) stream(t *testing.T, method string, params interface{}) []shared.StreamEvent {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp := ts.post(t, StreamPath, string(body))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return streamEvents(t, buf.Bytes())
}

func TestStreamDiscoverAgents(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)
	ts.rpc(t, "registerAgent", map[string]interface{}{"id": "a1", "name": "one", "capabilities": []string{"research"}})
	ts.rpc(t, "registerAgent", map[string]interface{}{"id": "a2", "name": "two", "capabilities": []string{"research"}})

	events := ts.stream(t, "discoverAgents", map[string]interface{}{"capabilities": []string{"research"}})
	require.Len(t, events, 4)

	assert.Equal(t, shared.StreamEventMeta, events[0].Type)
	assert.Equal(t, shared.StreamMetaStart, events[0].Event)

	// One message event per discovered agent.
	for _, ev := range events[1:3] {
		assert.Equal(t, shared.StreamEventMessage, ev.Type)
		require.NotNil(t, ev.Data)
		var agent map[string]interface{}
		require.NoError(t, json.Unmarshal(*ev.Data, &agent))
		assert.Contains(t, []interface{}{"a1", "a2"}, agent["id"])
	}

	assert.Equal(t, shared.StreamEventMeta, events[3].Type)
	assert.Equal(t, shared.StreamMetaEnd, events[3].Event)
}

func TestStreamSingleResult(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)
	ts.rpc(t, "registerAgent", map[string]interface{}{"id": "a1", "name": "one"})

	// Non-chunking results are delivered as exactly one message event.
	events := ts.stream(t, "getAgent", map[string]interface{}{"id": "a1"})
	require.Len(t, events, 3)
	assert.Equal(t, shared.StreamMetaStart, events[0].Event)
	assert.Equal(t, shared.StreamEventMessage, events[1].Type)
	assert.Equal(t, shared.StreamMetaEnd, events[2].Event)
}

func TestStreamErrorStillEnds(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	events := ts.stream(t, "getSessionInfo", map[string]interface{}{"sessionId": "ghost"})
	require.Len(t, events, 3)
	assert.Equal(t, shared.StreamMetaStart, events[0].Event)

	// The failure is delivered as a message event carrying the error object.
	require.Equal(t, shared.StreamEventMessage, events[1].Type)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(*events[1].Data, &payload))
	errObj, ok := payload["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(shared.JSONRPCErrorNotFound), errObj["code"])

	// The terminal marker is written regardless.
	assert.Equal(t, shared.StreamMetaEnd, events[2].Event)
}

func TestStreamParseErrorIsUnary(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, StreamPath, "{not json")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Envelope failures never open a stream.
	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	errObj := envelope["error"].(map[string]interface{})
	assert.Equal(t, float64(shared.JSONRPCErrorParseError), errObj["code"])
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.server.Client().Get(ts.server.URL + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "meshgate", health.Service)
}

func TestReadyEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.server.Client().Get(ts.server.URL + ReadyPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ready ReadyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, "ready", ready.Status)
}

func TestReadyEndpointWithoutMethods(t *testing.T) {
	logger := zap.NewNop()
	cfg := config.NewInternalConfig()
	manager, err := gateway.NewManager(logger, cfg, nil)
	require.NoError(t, err)

	httpTransport, err := New(manager, logger, cfg)
	require.NoError(t, err)
	mux := http.NewServeMux()
	httpTransport.RegisterHandlers(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + ReadyPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.server.Client().Get(ts.server.URL + StatusPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "meshgate", status.Server.Name)
	assert.Equal(t, "ok", status.Config)
	assert.Equal(t, "none", status.Memory) // no memory client wired
	assert.Greater(t, status.Methods, 0)
}
