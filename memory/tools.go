package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meshgate/meshgate/gateway/capability"
)

var addMemorySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"content": {"type": "string", "description": "Free-text memory to store"},
		"agent_id": {"type": "string", "description": "Agent the memory belongs to"},
		"metadata": {"type": "object", "description": "Arbitrary key/value annotations"}
	},
	"required": ["content"]
}`)

var searchMemoriesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Semantic search query"},
		"agent_id": {"type": "string", "description": "Restrict results to one agent"},
		"limit": {"type": "integer", "description": "Maximum number of hits", "minimum": 1}
	},
	"required": ["query"]
}`)

// RegisterTools exposes the memory service as callable tools.
func RegisterTools(tc *capability.ToolsCapability, client *Client) error {
	if client == nil {
		return fmt.Errorf("memory client cannot be nil")
	}

	err := tc.AddTool("memory_add", "Store a free-text memory for later semantic retrieval", addMemorySchema,
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			req := AddRequest{}
			req.Content, _ = args["content"].(string)
			req.AgentID, _ = args["agent_id"].(string)
			req.Metadata, _ = args["metadata"].(map[string]interface{})
			return client.AddMemory(ctx, req)
		})
	if err != nil {
		return err
	}

	return tc.AddTool("memory_search", "Search stored memories by semantic similarity", searchMemoriesSchema,
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			req := SearchRequest{}
			req.Query, _ = args["query"].(string)
			req.AgentID, _ = args["agent_id"].(string)
			if limit, ok := args["limit"].(float64); ok {
				req.Limit = int(limit)
			}
			return client.SearchMemories(ctx, req)
		})
}
