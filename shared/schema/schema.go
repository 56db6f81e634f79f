// Package schema defines the wire-level types exchanged over the RPC
// surface: the initialize handshake, capability advertisements and the
// parameter shapes of the tool and agent-communication methods.
package schema

// ProtocolVersion is the protocol revision this server implements.
const ProtocolVersion = "2025-03-26"

// Implementation describes the name and version of a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capability is a presence marker inside a capability advertisement.
type Capability struct {
	ListChanged *bool `json:"listChanged,omitempty"`
}

// ClientCapabilities describes features a client reports during initialize.
type ClientCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
	Streaming    *Capability            `json:"streaming,omitempty"` // Client can consume the streaming endpoint
}

// ServerCapabilities describes features the server supports.
type ServerCapabilities struct {
	Experimental  map[string]interface{} `json:"experimental,omitempty"`
	Tools         *Capability            `json:"tools,omitempty"`         // Present if the server offers tools to call
	Communication *Capability            `json:"communication,omitempty"` // Present if the agent-communication methods are available
}

// InitializeParams contains the client's half of the handshake.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's response to initialization.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"` // Server's chosen protocol version
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}
