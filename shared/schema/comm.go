package schema

import "encoding/json"

// RegisterAgentParams registers or replaces an agent descriptor.
// An empty ID asks the server to generate one.
type RegisterAgentParams struct {
	ID           string                 `json:"id,omitempty"`
	Name         string                 `json:"name"`
	Capabilities []string               `json:"capabilities,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Health       string                 `json:"health,omitempty"` // defaults to "online"
}

// DiscoverAgentsParams filters registered agents. Capability tags use AND
// semantics; an empty health string matches any state.
type DiscoverAgentsParams struct {
	Capabilities []string `json:"capabilities,omitempty"`
	Health       string   `json:"health,omitempty"`
}

// CreateSessionParams opens a collaboration session over registered agents.
type CreateSessionParams struct {
	Name         string   `json:"name"`
	Topic        string   `json:"topic,omitempty"`
	Mode         string   `json:"mode,omitempty"` // "collaborative" (default) or "broadcast"
	Participants []string `json:"participants"`
}

// GetSessionInfoParams looks up a session by id.
type GetSessionInfoParams struct {
	SessionID string `json:"sessionId"`
}

// SendMessageParams appends one message to a session log. An empty To
// broadcasts to the whole session.
type SendMessageParams struct {
	SessionID string          `json:"sessionId"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	Content   json.RawMessage `json:"content"`
	Type      string          `json:"type,omitempty"`
}

// GetMessageHistoryParams reads back a session log in sequence order.
// Limit 0 returns all retained messages.
type GetMessageHistoryParams struct {
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit,omitempty"`
}
