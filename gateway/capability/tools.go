package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meshgate/meshgate/gateway"
	"github.com/meshgate/meshgate/shared"
	"github.com/meshgate/meshgate/shared/schema"
	"go.uber.org/zap"
)

// ToolHandler executes one tool invocation. The business logic behind a
// tool is an external collaborator; this layer only routes and reports.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Tool pairs a wire definition with its handler.
type Tool struct {
	schema.Tool
	Handler ToolHandler
}

var _ gateway.ICapability = (*ToolsCapability)(nil)

// ToolsCapability handles tool registration and invocation.
type ToolsCapability struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	tools    map[string]*Tool
	handlers map[string]gateway.Handler
}

// NewTools creates an empty tool dispatch table.
func NewTools(logger *zap.Logger) *ToolsCapability {
	tc := &ToolsCapability{
		logger: logger.Named("tools"),
		tools:  make(map[string]*Tool),
	}
	tc.handlers = map[string]gateway.Handler{
		"tools/list": tc.handleToolsList,
		"tools/call": tc.handleToolsCall,
	}
	return tc
}

func (tc *ToolsCapability) GetHandlers() map[string]gateway.Handler {
	return tc.handlers
}

func (tc *ToolsCapability) SetCapabilities(s *schema.ServerCapabilities) {
	s.Tools = &schema.Capability{}
}

// AddTool registers a tool under a unique name.
func (tc *ToolsCapability) AddTool(name, description string, inputSchema json.RawMessage, handler ToolHandler) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, exists := tc.tools[name]; exists {
		return fmt.Errorf("tool with name %q already exists", name)
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil for tool %q", name)
	}

	tc.tools[name] = &Tool{
		Tool: schema.Tool{
			Name:        name,
			Description: description,
			InputSchema: inputSchema,
		},
		Handler: handler,
	}
	tc.logger.Info("Added tool", zap.String("name", name))
	return nil
}

func (tc *ToolsCapability) handleToolsList(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	tc.mu.RLock()
	toolsList := make([]schema.Tool, 0, len(tc.tools))
	for _, tool := range tc.tools {
		toolsList = append(toolsList, tool.Tool)
	}
	tc.mu.RUnlock()

	// Map iteration order is random; keep listings stable for clients.
	sort.Slice(toolsList, func(i, j int) bool { return toolsList[i].Name < toolsList[j].Name })

	tc.logger.Debug("Returning tool list", zap.Int("count", len(toolsList)))
	return schema.ListToolsResult{Tools: toolsList}, nil
}

func (tc *ToolsCapability) handleToolsCall(ctx context.Context, conn *gateway.Conn, params *json.RawMessage) (interface{}, error) {
	logger := tc.logger.With(zap.String("connID", conn.ID))

	if params == nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "Missing params"}
	}
	var p schema.CallToolParams
	if err := json.Unmarshal(*params, &p); err != nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("Invalid parameters: %v", err)}
	}
	if p.Name == "" {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "Missing tool name"}
	}
	logger = logger.With(zap.String("toolName", p.Name))

	tc.mu.RLock()
	tool, exists := tc.tools[p.Name]
	tc.mu.RUnlock()
	if !exists {
		logger.Warn("Tool not found")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorNotFound, Message: fmt.Sprintf("Tool not found: %s", p.Name)}
	}

	started := time.Now()
	result, err := tool.Handler(ctx, p.Arguments)
	duration := time.Since(started)

	// A failing handler is reported in-band, not as an envelope error.
	if err != nil {
		logger.Warn("Tool handler returned an error", zap.Error(err), zap.Duration("duration", duration))
		return schema.CallToolResult{
			Result:  map[string]interface{}{"error": err.Error()},
			IsError: true,
		}, nil
	}

	logger.Info("Tool call successful", zap.Duration("duration", duration))
	return schema.CallToolResult{Result: result, IsError: false}, nil
}
