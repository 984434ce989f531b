package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/security"
	"github.com/nextlevelbuilder/conductor/internal/store"
)

const defaultMemorySearchLimit = 5

// MemorySearchTool exposes store.MemoryStore.Search to the agent, so
// memory is agent-addressable rather than scheduler-internal only.
type MemorySearchTool struct {
	Memory store.MemoryStore
}

func (MemorySearchTool) Name() security.ToolName { return security.ToolMemorySearch }

func (t MemorySearchTool) Execute(ctx context.Context, args map[string]any) (string, bool) {
	query, _ := args["query"].(string)
	if query == "" {
		return "query is required", true
	}
	category, _ := args["category"].(string)
	limit := defaultMemorySearchLimit
	if raw, ok := args["limit"]; ok {
		if n, ok := toInt(raw); ok && n > 0 {
			limit = n
		}
	}

	results, err := t.Memory.Search(ctx, query, store.MemoryCategory(category), limit)
	if err != nil {
		return fmt.Sprintf("memory_search failed: %v", err), true
	}
	if len(results) == 0 {
		return "no memories found", false
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "[%d] (%s, score=%.3f) %s\n", r.ID, r.Category, r.Score, r.Content)
	}
	return b.String(), false
}

func MemorySearchDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolMemorySearch),
		Description: "Search stored memories by keyword and optional category.",
		Parameters: paramSchema(map[string]any{
			"query":    stringProp("search text"),
			"category": stringProp("optional category filter: fact, preference, decision, task, context, event, reflection"),
			"limit":    intProp("max results, defaults to 5"),
		}, []string{"query"}),
	}
}

// MemoryGetTool fetches a single memory entry by id.
type MemoryGetTool struct {
	Memory store.MemoryStore
}

func (MemoryGetTool) Name() security.ToolName { return security.ToolMemoryGet }

func (t MemoryGetTool) Execute(ctx context.Context, args map[string]any) (string, bool) {
	raw, ok := args["id"]
	if !ok {
		return "id is required", true
	}
	id, ok := toInt(raw)
	if !ok {
		return "id must be an integer", true
	}
	entry, err := t.Memory.Get(ctx, int64(id))
	if err != nil {
		return fmt.Sprintf("memory_get failed: %v", err), true
	}
	if entry == nil {
		return "memory not found", true
	}
	return fmt.Sprintf("(%s) %s", entry.Category, entry.Content), false
}

func MemoryGetDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolMemoryGet),
		Description: "Fetch a single memory entry by its id.",
		Parameters:  paramSchema(map[string]any{"id": intProp("memory id")}, []string{"id"}),
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
