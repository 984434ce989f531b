package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/security"
	"github.com/nextlevelbuilder/conductor/internal/store"
)

// SubagentTool invokes a saved worker as a fresh, ephemeral agent loop.
// Its own inner tool executor is already security-wrapped, so the outer
// Wrapper does not re-wrap it; re-wrapping would double-audit under a
// worker name that is not a real tool.
type SubagentTool struct {
	Provider agentcore.StreamProvider
	Tools    agentcore.ToolExecutor
	Workers  store.WorkerStore
}

func (SubagentTool) Name() security.ToolName { return security.ToolSubagent }

func (t SubagentTool) Execute(ctx context.Context, sessionID string, args map[string]any) (string, bool) {
	name, _ := args["worker"].(string)
	input, _ := args["input"].(string)
	if name == "" || input == "" {
		return "worker and input are required", true
	}

	worker, err := t.Workers.Get(ctx, name)
	if err != nil {
		return fmt.Sprintf("subagent lookup failed: %v", err), true
	}
	if worker == nil {
		return fmt.Sprintf("no saved worker named %q", name), true
	}

	// The inner agent carries the caller's session id so the worker's own
	// tool calls audit under the session that asked for them.
	agent := agentcore.New(agentcore.Config{
		Provider:     t.Provider,
		Model:        worker.Model,
		SystemPrompt: worker.SystemPrompt,
		Tools:        t.Tools,
		SessionID:    sessionID,
	})

	out, err := agent.Run(ctx, input)
	if err != nil {
		return fmt.Sprintf("subagent %q failed: %v", name, err), true
	}
	return out, false
}

func SubagentDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolSubagent),
		Description: "Delegate a task to a named saved worker and return its response.",
		Parameters: paramSchema(map[string]any{
			"worker": stringProp("name of the saved worker to invoke"),
			"input":  stringProp("task input for the worker"),
		}, []string{"worker", "input"}),
	}
}
