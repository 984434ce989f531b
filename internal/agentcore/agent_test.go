package agentcore

import (
	"context"
	"errors"
	"testing"
)

// scriptedProvider returns one canned stream per call, in order.
type scriptedProvider struct {
	turns [][]Event
	calls int
}

func (p *scriptedProvider) Stream(ctx context.Context, model string, messages []Message, tools []ToolDefinition) (<-chan Event, error) {
	if p.calls >= len(p.turns) {
		return nil, errors.New("scriptedProvider: no more turns scripted")
	}
	events := p.turns[p.calls]
	p.calls++
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type recordingExecutor struct {
	defs     []ToolDefinition
	calls    []ToolCall
	sessions []string
}

func (e *recordingExecutor) Definitions() []ToolDefinition { return e.defs }
func (e *recordingExecutor) Execute(ctx context.Context, sessionID string, call ToolCall) (string, bool) {
	e.calls = append(e.calls, call)
	e.sessions = append(e.sessions, sessionID)
	return "tool result for " + call.Name, false
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRunStreamSimpleReply(t *testing.T) {
	provider := &scriptedProvider{turns: [][]Event{
		{
			{Type: EventTextDelta, TextDelta: "hello "},
			{Type: EventTextDelta, TextDelta: "world"},
		},
	}}
	a := New(Config{Provider: provider, Model: "m"})

	events := drain(a.RunStream(context.Background(), "hi"))

	var lastType EventType
	for _, ev := range events {
		lastType = ev.Type
	}
	if lastType != EventDone {
		t.Fatalf("expected stream to end with EventDone, last event type was %v", lastType)
	}

	msgs := a.Messages()
	if len(msgs) != 2 || msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("expected [user, assistant], got %+v", msgs)
	}
	if msgs[1].Content != "hello world" {
		t.Fatalf("assistant content = %q, want \"hello world\"", msgs[1].Content)
	}
}

func TestRunStreamToolCallLoop(t *testing.T) {
	provider := &scriptedProvider{turns: [][]Event{
		{
			{Type: EventToolCall, ToolCall: &ToolCall{ID: "1", Name: "lookup"}},
		},
		{
			{Type: EventTextDelta, TextDelta: "final answer"},
		},
	}}
	executor := &recordingExecutor{}
	a := New(Config{Provider: provider, Model: "m", Tools: executor})

	drain(a.RunStream(context.Background(), "question"))

	if len(executor.calls) != 1 || executor.calls[0].Name != "lookup" {
		t.Fatalf("expected the tool to be invoked once, got %+v", executor.calls)
	}

	msgs := a.Messages()
	var roles []Role
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	// user, assistant(tool-call), tool(result), assistant(final)
	want := []Role{RoleUser, RoleAssistant, RoleTool, RoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles[%d] = %v, want %v (full: %v)", i, roles[i], want[i], roles)
		}
	}
	if msgs[len(msgs)-1].Content != "final answer" {
		t.Fatalf("final assistant message = %q", msgs[len(msgs)-1].Content)
	}
}

func TestRunStreamProviderError(t *testing.T) {
	provider := &scriptedProvider{turns: nil}
	a := New(Config{Provider: provider, Model: "m"})

	events := drain(a.RunStream(context.Background(), "hi"))
	if len(events) == 0 || events[len(events)-1].Type != EventError {
		t.Fatalf("expected a final error event, got %+v", events)
	}
}

func TestRunStreamResetsTextBufferOnNewTurn(t *testing.T) {
	// Regression guard: text from a tool-call turn must never leak into the
	// next turn's assistant message.
	provider := &scriptedProvider{turns: [][]Event{
		{
			{Type: EventTextDelta, TextDelta: "thinking out loud"},
			{Type: EventToolCall, ToolCall: &ToolCall{ID: "1", Name: "lookup"}},
		},
		{
			{Type: EventTextDelta, TextDelta: "clean final answer"},
		},
	}}
	executor := &recordingExecutor{}
	a := New(Config{Provider: provider, Model: "m", Tools: executor})

	drain(a.RunStream(context.Background(), "question"))

	msgs := a.Messages()
	last := msgs[len(msgs)-1]
	if last.Content != "clean final answer" {
		t.Fatalf("final assistant content = %q, want no leakage from the tool-call turn", last.Content)
	}
}

func TestToolCallsCarrySessionID(t *testing.T) {
	provider := &scriptedProvider{turns: [][]Event{
		{{Type: EventToolCall, ToolCall: &ToolCall{ID: "1", Name: "lookup"}}},
		{{Type: EventTextDelta, TextDelta: "done"}},
		{{Type: EventToolCall, ToolCall: &ToolCall{ID: "2", Name: "lookup"}}},
		{{Type: EventTextDelta, TextDelta: "done again"}},
	}}
	executor := &recordingExecutor{}
	a := New(Config{Provider: provider, Model: "m", Tools: executor, SessionID: "tg-9"})

	drain(a.RunStream(context.Background(), "first"))
	a.SetSession("dc-3")
	drain(a.RunStream(context.Background(), "second"))

	if len(executor.sessions) != 2 {
		t.Fatalf("expected two tool executions, got %v", executor.sessions)
	}
	if executor.sessions[0] != "tg-9" || executor.sessions[1] != "dc-3" {
		t.Fatalf("tool calls must carry the current session id, got %v", executor.sessions)
	}
}

func TestRunReturnsFinalAssistantText(t *testing.T) {
	provider := &scriptedProvider{turns: [][]Event{
		{{Type: EventTextDelta, TextDelta: "the answer is 42"}},
	}}
	a := New(Config{Provider: provider, Model: "m"})

	got, err := a.Run(context.Background(), "what is the answer?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "the answer is 42" {
		t.Fatalf("Run() = %q", got)
	}
}

func TestLoadAndClear(t *testing.T) {
	provider := &scriptedProvider{}
	a := New(Config{Provider: provider, Model: "m"})

	a.Load([]Message{{Role: RoleUser, Content: "restored"}})
	if len(a.Messages()) != 1 || a.Messages()[0].Content != "restored" {
		t.Fatalf("Load() did not restore messages, got %+v", a.Messages())
	}

	a.Clear()
	if len(a.Messages()) != 0 {
		t.Fatalf("Clear() left %d messages, want 0", len(a.Messages()))
	}
}
