package sqlite

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", Options{})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestQueueEnqueueClaimComplete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := s.Stores()

	id, err := st.Queue.Enqueue(ctx, store.QueuedMessage{Channel: "telegram", SenderID: "u1", SessionID: "tg-1", Content: "hi"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msg, err := st.Queue.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if msg == nil || msg.ID != id {
		t.Fatalf("claimed message mismatch: %+v", msg)
	}
	if msg.Status != store.QueueProcessing {
		t.Fatalf("claimed message status = %v, want processing", msg.Status)
	}

	// A second claim finds nothing else pending.
	second, err := st.Queue.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second != nil {
		t.Fatalf("expected no more pending messages, got %+v", second)
	}

	if err := st.Queue.Complete(ctx, id, true, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestQueueCompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := s.Stores()

	id, _ := st.Queue.Enqueue(ctx, store.QueuedMessage{Channel: "telegram", SenderID: "u1", SessionID: "tg-1", Content: "hi"})
	if _, err := st.Queue.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := st.Queue.Complete(ctx, id, true, ""); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	// Completing an already-terminal row a second time must be a silent no-op,
	// not an error, and must not flip a done row to failed.
	if err := st.Queue.Complete(ctx, id, false, "late failure"); err != nil {
		t.Fatalf("second complete: %v", err)
	}
}

func TestQueueRequeueStale(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := s.Stores()

	st.Queue.Enqueue(ctx, store.QueuedMessage{Channel: "telegram", SenderID: "u1", SessionID: "tg-1", Content: "a"})
	st.Queue.Enqueue(ctx, store.QueuedMessage{Channel: "telegram", SenderID: "u1", SessionID: "tg-1", Content: "b"})

	// Claim both, simulating in-flight processing, then simulate a crash:
	// RequeueStale should put them back to pending.
	if _, err := st.Queue.ClaimNext(ctx); err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	if _, err := st.Queue.ClaimNext(ctx); err != nil {
		t.Fatalf("claim 2: %v", err)
	}

	n, err := st.Queue.RequeueStale(ctx)
	if err != nil {
		t.Fatalf("requeue stale: %v", err)
	}
	if n != 2 {
		t.Fatalf("RequeueStale() = %d, want 2", n)
	}

	msg, err := st.Queue.ClaimNext(ctx)
	if err != nil || msg == nil {
		t.Fatalf("expected a requeued message claimable again, got %+v, err=%v", msg, err)
	}
}
