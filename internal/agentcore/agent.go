package agentcore

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/conductor/internal/errs"
)

const defaultMaxIterations = 20

// Config constructs an Agent.
type Config struct {
	Provider      StreamProvider
	Model         string
	SystemPrompt  string
	MaxIterations int // tool-call turns before the loop gives up; 0 = default
	Tools         ToolExecutor

	// SessionID attributes the agent's tool calls in the audit log. Set it
	// at construction for single-session agents (ephemeral workers,
	// persistent cron runs) or via SetSession when a long-lived agent is
	// switched between sessions.
	SessionID string
}

// Agent is the mutable think-act-observe loop the Conductor owns exactly
// one of. Ephemeral and persistent prompt helpers construct their own
// short-lived Agent values instead of sharing the Conductor's; Agent
// carries no global state.
type Agent struct {
	provider      StreamProvider
	model         string
	systemPrompt  string
	maxIterations int
	tools         ToolExecutor

	sessionID string
	messages  []Message
}

// New creates an Agent with an empty conversation.
func New(cfg Config) *Agent {
	max := cfg.MaxIterations
	if max <= 0 {
		max = defaultMaxIterations
	}
	return &Agent{
		provider:      cfg.Provider,
		model:         cfg.Model,
		systemPrompt:  cfg.SystemPrompt,
		maxIterations: max,
		tools:         cfg.Tools,
		sessionID:     cfg.SessionID,
		messages:      []Message{},
	}
}

// SetSession records which session the agent is currently serving, so tool
// calls audit under the right session id after a session switch.
func (a *Agent) SetSession(sessionID string) {
	a.sessionID = sessionID
}

// Messages returns a copy of the current conversation (for tape save).
func (a *Agent) Messages() []Message {
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Load replaces the conversation with msgs (session switch).
func (a *Agent) Load(msgs []Message) {
	a.messages = make([]Message, len(msgs))
	copy(a.messages, msgs)
}

// Clear empties the conversation in place.
func (a *Agent) Clear() {
	a.messages = a.messages[:0]
}

// RunStream appends userContent as a user message and drives the
// think-act-observe loop, emitting Events as they occur. The channel is
// closed after EventDone or EventError. The final assistant message (after
// all tool-call turns resolve) is appended to the Agent's conversation.
func (a *Agent) RunStream(ctx context.Context, userContent string) <-chan Event {
	out := make(chan Event, 16)
	a.messages = append(a.messages, Message{Role: RoleUser, Content: userContent})

	go a.loop(ctx, out)
	return out
}

func (a *Agent) loop(ctx context.Context, out chan<- Event) {
	defer close(out)

	defs := []ToolDefinition{}
	if a.tools != nil {
		defs = a.tools.Definitions()
	}

	for iter := 0; iter < a.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			out <- Event{Type: EventError, Err: ctx.Err()}
			return
		default:
		}

		out <- Event{Type: EventTurnStart}

		promptMessages := a.promptMessages()
		stream, err := a.provider.Stream(ctx, a.model, promptMessages, defs)
		if err != nil {
			out <- Event{Type: EventError, Err: errs.Wrap(errs.Provider, err)}
			return
		}

		var textBuf string
		var pendingCalls []ToolCall
		var usage *Usage

		for ev := range stream {
			switch ev.Type {
			case EventTextDelta:
				textBuf += ev.TextDelta
				out <- ev
			case EventToolCall:
				if ev.ToolCall != nil {
					pendingCalls = append(pendingCalls, *ev.ToolCall)
				}
				out <- ev
			case EventError:
				ev.Err = errs.Wrap(errs.Provider, ev.Err)
				out <- ev
				return
			}
			if ev.Usage != nil {
				usage = ev.Usage
			}
		}

		assistantMsg := Message{Role: RoleAssistant, Content: textBuf}
		if len(pendingCalls) > 0 {
			assistantMsg.ToolCalls = pendingCalls
		}
		a.messages = append(a.messages, assistantMsg)
		out <- Event{Type: EventTurnEnd, Usage: usage}

		if len(pendingCalls) == 0 {
			out <- Event{Type: EventDone, Usage: usage}
			return
		}

		// Act: execute each requested tool call, observe its result.
		for _, call := range pendingCalls {
			select {
			case <-ctx.Done():
				out <- Event{Type: EventError, Err: ctx.Err()}
				return
			default:
			}

			var content string
			var isError bool
			if a.tools != nil {
				content, isError = a.tools.Execute(ctx, a.sessionID, call)
			} else {
				content, isError = "no tool executor configured", true
			}

			a.messages = append(a.messages, Message{
				Role:       RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
			out <- Event{Type: EventToolResult, ToolCall: &call, TextDelta: content, ToolError: isError}
		}
	}

	slog.Warn("agent loop hit max iterations without resolving", "max_iterations", a.maxIterations)
	out <- Event{Type: EventDone}
}

// promptMessages prepends the system prompt. Persona text is never
// persisted in the tape; it is re-injected on every turn.
func (a *Agent) promptMessages() []Message {
	if a.systemPrompt == "" {
		return a.messages
	}
	out := make([]Message, 0, len(a.messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: a.systemPrompt})
	out = append(out, a.messages...)
	return out
}

// Run drives RunStream to completion and returns the final assistant text.
// Used by ephemeral/persistent prompt helpers that don't need incremental
// streaming (scheduler cortex passes, cron "isolated" runs, direct worker
// delegation).
func (a *Agent) Run(ctx context.Context, userContent string) (string, error) {
	var last string
	for ev := range a.RunStream(ctx, userContent) {
		switch ev.Type {
		case EventTextDelta:
			last += ev.TextDelta
		case EventError:
			return "", ev.Err
		}
	}
	if len(a.messages) > 0 && a.messages[len(a.messages)-1].Role == RoleAssistant {
		return a.messages[len(a.messages)-1].Content, nil
	}
	return last, nil
}
