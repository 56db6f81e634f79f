package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meshgate/meshgate/comm"
	"github.com/meshgate/meshgate/gateway"
	"github.com/meshgate/meshgate/shared"
	"github.com/meshgate/meshgate/shared/schema"
	"go.uber.org/zap"
)

var _ gateway.ICapability = (*CommCapability)(nil)

// CommCapability maps the agent-communication methods 1:1 onto the
// registry, discovery, session store and messaging engine.
type CommCapability struct {
	logger    *zap.Logger
	registry  *comm.Registry
	discovery *comm.Discovery
	sessions  *comm.SessionStore
	engine    *comm.Engine
	handlers  map[string]gateway.Handler
}

// NewComm wires the communication layer into the dispatch table.
func NewComm(logger *zap.Logger, registry *comm.Registry, discovery *comm.Discovery, sessions *comm.SessionStore, engine *comm.Engine) *CommCapability {
	cc := &CommCapability{
		logger:    logger.Named("comm"),
		registry:  registry,
		discovery: discovery,
		sessions:  sessions,
		engine:    engine,
	}
	cc.handlers = map[string]gateway.Handler{
		"registerAgent":     cc.handleRegisterAgent,
		"deregisterAgent":   cc.handleDeregisterAgent,
		"getAgent":          cc.handleGetAgent,
		"heartbeat":         cc.handleHeartbeat,
		"discoverAgents":    cc.handleDiscoverAgents,
		"createSession":     cc.handleCreateSession,
		"getSessionInfo":    cc.handleGetSessionInfo,
		"endSession":        cc.handleEndSession,
		"sendMessage":       cc.handleSendMessage,
		"getMessageHistory": cc.handleGetMessageHistory,
	}
	return cc
}

func (cc *CommCapability) GetHandlers() map[string]gateway.Handler {
	return cc.handlers
}

func (cc *CommCapability) SetCapabilities(s *schema.ServerCapabilities) {
	s.Communication = &schema.Capability{}
}

// DiscoverAgentsResult streams one message event per agent.
type DiscoverAgentsResult struct {
	Agents []*comm.AgentDescriptor `json:"agents"`
}

func (r DiscoverAgentsResult) Chunks() []interface{} {
	chunks := make([]interface{}, len(r.Agents))
	for i, agent := range r.Agents {
		chunks[i] = agent
	}
	return chunks
}

// MessageHistoryResult streams one message event per stored message.
type MessageHistoryResult struct {
	Messages []*comm.Message `json:"messages"`
}

func (r MessageHistoryResult) Chunks() []interface{} {
	chunks := make([]interface{}, len(r.Messages))
	for i, msg := range r.Messages {
		chunks[i] = msg
	}
	return chunks
}

func invalidParams(format string, args ...interface{}) *shared.JSONRPCError {
	return &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func decodeParams(params *json.RawMessage, into interface{}) *shared.JSONRPCError {
	if params == nil {
		return invalidParams("Missing params")
	}
	if err := json.Unmarshal(*params, into); err != nil {
		return invalidParams("Invalid parameters: %v", err)
	}
	return nil
}

func (cc *CommCapability) handleRegisterAgent(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p schema.RegisterAgentParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Name == "" {
		return nil, invalidParams("Missing agent name")
	}

	id, err := cc.registry.RegisterAgent(&comm.AgentDescriptor{
		ID:           p.ID,
		Name:         p.Name,
		Capabilities: p.Capabilities,
		Metadata:     p.Metadata,
		Health:       comm.HealthState(p.Health),
	})
	if err != nil {
		return nil, err
	}
	return cc.registry.GetAgent(id)
}

func (cc *CommCapability) handleDeregisterAgent(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p struct {
		ID string `json:"id"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.ID == "" {
		return nil, invalidParams("Missing agent id")
	}
	removed := cc.registry.DeregisterAgent(p.ID)
	return map[string]interface{}{"removed": removed}, nil
}

func (cc *CommCapability) handleGetAgent(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p struct {
		ID string `json:"id"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.ID == "" {
		return nil, invalidParams("Missing agent id")
	}
	return cc.registry.GetAgent(p.ID)
}

func (cc *CommCapability) handleHeartbeat(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p struct {
		ID     string `json:"id"`
		Health string `json:"health,omitempty"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.ID == "" {
		return nil, invalidParams("Missing agent id")
	}
	if err := cc.registry.Heartbeat(p.ID, comm.HealthState(p.Health)); err != nil {
		return nil, err
	}
	return cc.registry.GetAgent(p.ID)
}

func (cc *CommCapability) handleDiscoverAgents(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p schema.DiscoverAgentsParams
	if params != nil {
		if rpcErr := decodeParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
	}
	agents := cc.discovery.DiscoverAgents(comm.Filter{
		Capabilities: p.Capabilities,
		Health:       comm.HealthState(p.Health),
	})
	return DiscoverAgentsResult{Agents: agents}, nil
}

func (cc *CommCapability) handleCreateSession(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p schema.CreateSessionParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if len(p.Participants) == 0 {
		return nil, invalidParams("Missing participants")
	}
	return cc.sessions.CreateSession(comm.SessionSpec{
		Name:         p.Name,
		Topic:        p.Topic,
		Mode:         comm.InteractionMode(p.Mode),
		Participants: p.Participants,
	})
}

func (cc *CommCapability) handleGetSessionInfo(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p schema.GetSessionInfoParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.SessionID == "" {
		return nil, invalidParams("Missing sessionId")
	}
	return cc.sessions.GetSessionInfo(p.SessionID)
}

func (cc *CommCapability) handleEndSession(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p schema.GetSessionInfoParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.SessionID == "" {
		return nil, invalidParams("Missing sessionId")
	}
	if err := cc.sessions.EndSession(p.SessionID); err != nil {
		return nil, err
	}
	return cc.sessions.GetSessionInfo(p.SessionID)
}

func (cc *CommCapability) handleSendMessage(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p schema.SendMessageParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.SessionID == "" {
		return nil, invalidParams("Missing sessionId")
	}
	if p.From == "" {
		return nil, invalidParams("Missing from")
	}
	if len(p.Content) == 0 {
		return nil, invalidParams("Missing content")
	}
	return cc.engine.SendMessage(p.SessionID, p.From, p.To, p.Content, p.Type)
}

func (cc *CommCapability) handleGetMessageHistory(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	var p schema.GetMessageHistoryParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.SessionID == "" {
		return nil, invalidParams("Missing sessionId")
	}
	if p.Limit < 0 {
		return nil, invalidParams("Limit must not be negative")
	}
	messages, err := cc.engine.GetMessageHistory(p.SessionID, p.Limit)
	if err != nil {
		return nil, err
	}
	return MessageHistoryResult{Messages: messages}, nil
}
