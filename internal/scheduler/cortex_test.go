package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/store"
)

func TestCortexDueFirstRun(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s := New(Config{Store: st, Runner: &fakeRunner{}, CortexIntervalHours: 24})

	due, err := s.cortexDue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("cortexDue: %v", err)
	}
	if !due {
		t.Fatal("cortex should be due when no last-run marker exists")
	}
}

func TestCortexDueRespectsInterval(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	s := New(Config{Store: st, Runner: &fakeRunner{}, CortexIntervalHours: 24})

	now := time.Now().UTC()
	st.State.Set(ctx, stateCortexLastRun, now.Format(time.RFC3339))

	due, err := s.cortexDue(ctx, now.Add(1*time.Hour))
	if err != nil {
		t.Fatalf("cortexDue: %v", err)
	}
	if due {
		t.Fatal("cortex should not be due before the configured interval elapses")
	}

	due, err = s.cortexDue(ctx, now.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("cortexDue: %v", err)
	}
	if !due {
		t.Fatal("cortex should be due once the interval has elapsed")
	}
}

func TestConsolidateSkipsShortAndAlreadyDoneSessions(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	runner := &fakeRunner{reply: "fact one\nfact two"}
	s := New(Config{Store: st, Runner: runner, CortexModel: "cheap"})

	now := time.Now().UTC()

	// Too few messages: should be skipped entirely.
	st.Tape.Save(ctx, "tg-short", []agentcore.Message{{Role: agentcore.RoleUser, Content: "hi"}})
	// Enough messages: should be consolidated.
	st.Tape.Save(ctx, "tg-long", []agentcore.Message{
		{Role: agentcore.RoleUser, Content: "a"}, {Role: agentcore.RoleAssistant, Content: "b"},
		{Role: agentcore.RoleUser, Content: "c"}, {Role: agentcore.RoleAssistant, Content: "d"},
	})

	s.consolidate(ctx, now)

	if runner.ephemeralRuns != 1 {
		t.Fatalf("expected exactly one consolidation LLM call, got %d", runner.ephemeralRuns)
	}

	results, err := st.Memory.Search(ctx, "fact", store.CategoryFact, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 extracted facts stored, got %d: %+v", len(results), results)
	}

	// Running again should be a no-op: the session is already marked consolidated.
	s.consolidate(ctx, now.Add(time.Minute))
	if runner.ephemeralRuns != 1 {
		t.Fatalf("expected consolidation to run at most once per session, got %d total calls", runner.ephemeralRuns)
	}
}

func TestIndexSessionsStoresReflectionSummary(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	runner := &fakeRunner{reply: "The user asked about deployment and got an answer."}
	s := New(Config{Store: st, Runner: runner, CortexModel: "cheap"})

	now := time.Now().UTC()
	st.Tape.Save(ctx, "tg-indexed", []agentcore.Message{
		{Role: agentcore.RoleUser, Content: "how do I deploy?"},
		{Role: agentcore.RoleAssistant, Content: "run the release script"},
	})

	s.indexSessions(ctx, now)

	if runner.ephemeralRuns != 1 {
		t.Fatalf("expected one summarization call, got %d", runner.ephemeralRuns)
	}

	results, err := st.Memory.Search(ctx, "deployment answer", store.CategoryReflection, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one reflection memory, got %d: %+v", len(results), results)
	}
}

func TestSplitLinesTrimsAndDropsEmpty(t *testing.T) {
	got := splitLines("- fact one\n\nfact two  \n- fact three")
	want := []string{"fact one", "fact two", "fact three"}
	if len(got) != len(want) {
		t.Fatalf("splitLines() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitLines()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
