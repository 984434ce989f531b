package conductor

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/store"
	"github.com/nextlevelbuilder/conductor/internal/store/sqlite"
)

type canned struct {
	reply string
}

func (p canned) Stream(ctx context.Context, model string, messages []agentcore.Message, tools []agentcore.ToolDefinition) (<-chan agentcore.Event, error) {
	ch := make(chan agentcore.Event, 2)
	ch <- agentcore.Event{Type: agentcore.EventTextDelta, TextDelta: p.reply}
	close(ch)
	return ch, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:", sqlite.Options{})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.Stores()
}

func TestRunEphemeralUsesDefaultsWhenUnset(t *testing.T) {
	st := openTestStore(t)
	c := New(Config{Store: st, Provider: canned{reply: "hi there"}, Model: "default-model", SystemPrompt: "be helpful"})

	reply, err := c.RunEphemeral(context.Background(), "", "", "hello")
	if err != nil {
		t.Fatalf("RunEphemeral: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestRunPersistentLoadsAndSavesTape(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := New(Config{Store: st, Provider: canned{reply: "continuing"}, Model: "m", SystemPrompt: "persona"})

	if err := st.Tape.Save(ctx, "cron-nightly", []agentcore.Message{
		{Role: agentcore.RoleUser, Content: "earlier turn"},
	}); err != nil {
		t.Fatalf("seed tape: %v", err)
	}

	reply, err := c.RunPersistent(ctx, "cron-nightly", "", "new input")
	if err != nil {
		t.Fatalf("RunPersistent: %v", err)
	}
	if reply != "continuing" {
		t.Fatalf("reply = %q", reply)
	}

	saved, err := st.Tape.Load(ctx, "cron-nightly")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// earlier turn, new input (user), continuing (assistant)
	if len(saved) != 3 {
		t.Fatalf("expected the tape to grow by the new exchange, got %+v", saved)
	}
	if saved[0].Content != "earlier turn" {
		t.Fatalf("expected prior history to be preserved, got %+v", saved)
	}
}

func TestRunPersistentDoesNotTouchConductorAgent(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := New(Config{Store: st, Provider: canned{reply: "side reply"}, Model: "m"})

	before := c.agent.Messages()
	if _, err := c.RunPersistent(ctx, "cron-other", "", "input"); err != nil {
		t.Fatalf("RunPersistent: %v", err)
	}
	after := c.agent.Messages()

	if len(before) != 0 || len(after) != 0 {
		t.Fatalf("RunPersistent must never mutate the Conductor's own agent, before=%+v after=%+v", before, after)
	}
}

func TestRunEphemeralWorkerUsesSavedWorkerConfig(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := New(Config{Store: st, Provider: canned{reply: "worker reply"}, Model: "main-model"})

	if err := st.Workers.Upsert(ctx, store.SavedWorker{Name: "researcher", SystemPrompt: "you research", Model: "worker-model"}); err != nil {
		t.Fatalf("seed worker: %v", err)
	}

	reply, err := c.runEphemeralWorker(ctx, "researcher", "tg-7", "look into this")
	if err != nil {
		t.Fatalf("runEphemeralWorker: %v", err)
	}
	if reply != "worker reply" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestRunEphemeralWorkerUnknownWorker(t *testing.T) {
	st := openTestStore(t)
	c := New(Config{Store: st, Provider: canned{reply: "x"}})

	_, err := c.runEphemeralWorker(context.Background(), "nonexistent", "tg-7", "input")
	if err == nil {
		t.Fatal("expected an error for a worker that was never saved")
	}
}

func TestPersistExchangeAppendsUserAssistantPair(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	c := New(Config{Store: st, Provider: canned{reply: "x"}})

	if err := c.persistExchange(ctx, "dc-1", "question", "answer"); err != nil {
		t.Fatalf("persistExchange: %v", err)
	}

	msgs, err := st.Tape.Load(ctx, "dc-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "question" || msgs[1].Content != "answer" {
		t.Fatalf("persisted exchange mismatch: %+v", msgs)
	}
	if msgs[0].Role != agentcore.RoleUser || msgs[1].Role != agentcore.RoleAssistant {
		t.Fatalf("expected roles [user, assistant], got [%v, %v]", msgs[0].Role, msgs[1].Role)
	}
}
