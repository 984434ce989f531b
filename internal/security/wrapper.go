package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

// Tool is the uniform shape every built-in tool presents to the Wrapper.
// Concrete tools live in internal/tools; this package only needs enough to
// enforce policy uniformly.
type Tool interface {
	Name() ToolName
	Execute(ctx context.Context, args map[string]any) (content string, isError bool)
}

// truncateLen bounds how much of a tool's input is kept in the audit log.
const truncateLen = 500

// Wrapper is the uniform tool gate: every agent-facing tool call passes
// through it before the inner tool runs.
type Wrapper struct {
	policy *Policy
	audit  store.AuditStore
	tools  map[ToolName]Tool
}

// NewWrapper builds a Wrapper over the given tool set. Dynamic sub-agent
// tools are constructed separately and are not registered here: their inner
// tools are already wrapped, and re-wrapping would double-audit under a
// worker name that is not a real tool.
func NewWrapper(policy *Policy, audit store.AuditStore, tools ...Tool) *Wrapper {
	m := make(map[ToolName]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &Wrapper{policy: policy, audit: audit, tools: m}
}

// Execute runs the wrapper's five-step check then, if every check passes,
// the inner tool.
func (w *Wrapper) Execute(ctx context.Context, sessionID string, name ToolName, args map[string]any) (content string, isError bool) {
	// Step 1: enable check.
	if !w.policy.Enabled(name) {
		w.auditDenied(ctx, sessionID, name, "disabled")
		return fmt.Sprintf("tool %q is disabled", name), true
	}

	// Step 2: shell deny-pattern scan.
	if IsShellTool(name) {
		command, _ := args["command"].(string)
		if pattern, denied := w.policy.DeniedByPattern(command); denied {
			w.auditDenied(ctx, sessionID, name, "deny_pattern:"+pattern)
			return "command blocked by security policy", true
		}
	}

	// Step 3: file path allowlist.
	if IsFileTool(name) {
		path, _ := args["path"].(string)
		if !w.policy.PathAllowed(name, path) {
			w.auditDenied(ctx, sessionID, name, "path_not_allowed")
			return fmt.Sprintf("path %q is not within an allowed directory", path), true
		}
	}

	// Step 4: http host allowlist.
	if name == ToolHTTP {
		rawURL, _ := args["url"].(string)
		if !w.policy.HostAllowed(rawURL) {
			w.auditDenied(ctx, sessionID, name, "host_not_allowed")
			return fmt.Sprintf("url %q is not within an allowed host", rawURL), true
		}
	}

	// Step 5: invoke and audit.
	tool, ok := w.tools[name]
	if !ok {
		return fmt.Sprintf("unknown tool %q", name), true
	}
	content, isError = tool.Execute(ctx, args)
	w.auditCall(ctx, sessionID, name, args)
	return content, isError
}

func (w *Wrapper) auditDenied(ctx context.Context, sessionID string, name ToolName, reason string) {
	if w.audit == nil {
		return
	}
	if err := w.audit.Append(ctx, store.AuditEvent{
		SessionID: sessionID,
		EventType: store.AuditToolDenied,
		ToolName:  string(name),
		Detail:    reason,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		logAuditError(err)
	}
}

func (w *Wrapper) auditCall(ctx context.Context, sessionID string, name ToolName, args map[string]any) {
	if w.audit == nil {
		return
	}
	if err := w.audit.Append(ctx, store.AuditEvent{
		SessionID: sessionID,
		EventType: store.AuditToolCall,
		ToolName:  string(name),
		Detail:    redactArgs(args),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		logAuditError(err)
	}
}

// redactArgs renders args for the audit log, truncated so large payloads
// (file contents, http bodies) don't bloat the audit table.
func redactArgs(args map[string]any) string {
	var b strings.Builder
	for k, v := range args {
		fmt.Fprintf(&b, "%s=%v ", k, v)
	}
	s := b.String()
	if len(s) > truncateLen {
		return s[:truncateLen] + "...(truncated)"
	}
	return s
}

func logAuditError(err error) {
	// Audit failures must never fail a tool call in progress.
	slog.Error("audit append failed", "error", err)
}
