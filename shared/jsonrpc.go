package shared

import (
	"encoding/json"
	"fmt"
)

const (
	JSONRPCVersion = "2.0"

	// Standard JSON-RPC 2.0 error codes
	JSONRPCErrorParseError     = -32700 // Invalid JSON was received
	JSONRPCErrorInvalidRequest = -32600 // The JSON sent is not a valid Request object
	JSONRPCErrorMethodNotFound = -32601 // The method does not exist / is not available
	JSONRPCErrorInvalidParams  = -32602 // Invalid method parameter(s)
	JSONRPCErrorInternal       = -32603 // Internal JSON-RPC error

	// -32000 to -32099 are reserved for implementation-defined server errors
	JSONRPCErrorServerError    = -32000 // Generic server error
	JSONRPCErrorNotInitialized = -32002 // Method called before a successful initialize
	JSONRPCErrorTimeout        = -32008 // Request exceeded its deadline

	JSONRPCErrorNotFound           = -32010 // Unknown agent, session or tool
	JSONRPCErrorSessionEnded       = -32011 // Operation against an ended session
	JSONRPCErrorNotParticipant     = -32012 // Sender is not a session participant
	JSONRPCErrorUnknownParticipant = -32013 // Session references an unregistered agent

	JSONRPCErrorRateLimited = -32029 // Throttled; data carries retryAfterMs
)

// RequestID holds a JSON-RPC request id, which may be a string or a number.
type RequestID struct {
	Value interface{}
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	id.Value = v
	return nil
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Value)
}

func (id *RequestID) String() string {
	if id.IsEmpty() {
		return "nil"
	}
	bytes, err := json.Marshal(id.Value)
	if err != nil {
		return err.Error()
	}
	return string(bytes)
}

func (id *RequestID) IsEmpty() bool {
	return id == nil || id.Value == nil
}

// JSONRPCRequest is the inbound envelope accepted on the RPC endpoints.
type JSONRPCRequest struct {
	JSONRPC string           `json:"jsonrpc"` // Must be "2.0"
	ID      *RequestID       `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  *json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents the structure for sending successful JSON-RPC responses.
type JSONRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *RequestID       `json:"id"` // Must be present and same as request ID
	Result  *json.RawMessage `json:"result"`
}

type JSONRPCErrorResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      *RequestID    `json:"id,omitempty"`
	Error   *JSONRPCError `json:"error"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error type code
	Message string      `json:"message"`        // Short error description
	Data    interface{} `json:"data,omitempty"` // Additional error information
}

// Error implements the Go error interface for JSONRPCError.
func (e *JSONRPCError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// ParseRequest decodes a single JSON-RPC request envelope from a raw body.
func ParseRequest(data []byte) (*JSONRPCRequest, *JSONRPCError) {
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &JSONRPCError{Code: JSONRPCErrorParseError, Message: "Invalid JSON", Data: err.Error()}
	}
	if req.JSONRPC != JSONRPCVersion {
		return nil, &JSONRPCError{Code: JSONRPCErrorInvalidRequest, Message: fmt.Sprintf("Unsupported jsonrpc version: %q", req.JSONRPC)}
	}
	if req.Method == "" {
		return nil, &JSONRPCError{Code: JSONRPCErrorInvalidRequest, Message: "Missing method"}
	}
	return &req, nil
}

// NewResponse wraps a handler result into a success envelope. The result is
// marshaled eagerly so encoding failures surface as internal errors instead
// of a half-written body.
func NewResponse(id *RequestID, result interface{}) (interface{}, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	rawMsg := json.RawMessage(raw)
	return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: &rawMsg}, nil
}
