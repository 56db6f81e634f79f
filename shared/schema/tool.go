package schema

import "encoding/json"

// Tool describes one callable entry of the dispatch table.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"` // JSON Schema for the arguments object
}

// ListToolsParams is accepted for forward compatibility; no fields today.
type ListToolsParams struct{}

// ListToolsResult carries the registered tool definitions.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams identifies a tool and its arguments.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// CallToolResult wraps a tool invocation outcome. Handler failures are
// reported in-band via IsError rather than as JSON-RPC errors, so a failing
// tool does not tear down the call envelope.
type CallToolResult struct {
	Result  interface{} `json:"result,omitempty"`
	IsError bool        `json:"isError"`
}
