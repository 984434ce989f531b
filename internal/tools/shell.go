package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/security"
)

const shellTimeout = 30 * time.Second

// ShellTool runs a command via the system shell. Deny-pattern scanning
// happens in security.Wrapper before Execute runs; this tool only enforces
// a hard wall-clock timeout, since a blocked deny-pattern cannot protect
// against a command that simply never returns.
type ShellTool struct{}

func (ShellTool) Name() security.ToolName { return security.ToolBash }

func (ShellTool) Execute(ctx context.Context, args map[string]any) (string, bool) {
	command, _ := args["command"].(string)
	if command == "" {
		return "command is required", true
	}

	ctx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n[stderr]\n" + stderr.String()
	}
	if ctx.Err() != nil {
		return fmt.Sprintf("command timed out after %s", shellTimeout), true
	}
	if err != nil {
		return fmt.Sprintf("%s\nexit error: %v", output, err), true
	}
	return output, false
}

func ShellDefinition() agentcore.ToolDefinition {
	return agentcore.ToolDefinition{
		Name:        string(security.ToolBash),
		Description: "Run a shell command and return its combined stdout/stderr.",
		Parameters:  paramSchema(map[string]any{"command": stringProp("shell command to run")}, []string{"command"}),
	}
}
