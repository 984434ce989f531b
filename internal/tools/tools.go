// Package tools implements the built-in tool set: file ops, http, shell,
// memory search, and saved-worker delegation. Every tool here is designed
// to run behind internal/security.Wrapper; none of them consult policy
// directly, keeping the tool bodies unaware of allowlist and deny-pattern
// enforcement.
package tools

import (
	"context"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/security"
)

// paramSchema is a minimal helper for building the JSON-schema parameter
// blocks every ToolDefinition needs.
func paramSchema(props map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

// Registry adapts a fixed tool set into agentcore.ToolExecutor, routing
// every call through the security.Wrapper.
type Registry struct {
	wrapper *security.Wrapper
	defs    []agentcore.ToolDefinition
}

// NewRegistry builds a Registry. defs must be supplied in the same order the
// underlying tools were registered with wrapper, so Definitions() reports a
// stable, deterministic order to the provider.
func NewRegistry(wrapper *security.Wrapper, defs []agentcore.ToolDefinition) *Registry {
	return &Registry{wrapper: wrapper, defs: defs}
}

func (r *Registry) Definitions() []agentcore.ToolDefinition {
	return r.defs
}

func (r *Registry) Execute(ctx context.Context, sessionID string, call agentcore.ToolCall) (string, bool) {
	return r.wrapper.Execute(ctx, sessionID, security.ToolName(call.Name), call.Arguments)
}
