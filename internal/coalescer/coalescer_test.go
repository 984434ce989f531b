package coalescer

import (
	"sync"
	"testing"
	"time"
)

func TestCoalescerJoinsBufferedFragments(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	c := New(func(string) time.Duration { return 20 * time.Millisecond }, func(sessionID, content string) {
		mu.Lock()
		got = append(got, content)
		mu.Unlock()
		close(done)
	})

	c.Add("s1", "hello")
	c.Add("s1", "world")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for coalescer to fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "hello\nworld" {
		t.Fatalf("got %+v, want one emission joining both fragments with a newline", got)
	}
}

func TestCoalescerSessionsAreIndependent(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	var wg sync.WaitGroup
	wg.Add(2)

	c := New(func(string) time.Duration { return 15 * time.Millisecond }, func(sessionID, content string) {
		mu.Lock()
		seen[sessionID] = content
		mu.Unlock()
		wg.Done()
	})

	c.Add("s1", "a")
	c.Add("s2", "b")

	waitOrTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if seen["s1"] != "a" || seen["s2"] != "b" {
		t.Fatalf("sessions leaked into each other: %+v", seen)
	}
}

func TestCoalescerFlushBypassesTimer(t *testing.T) {
	var mu sync.Mutex
	var got string
	fired := make(chan struct{})

	c := New(func(string) time.Duration { return time.Hour }, func(sessionID, content string) {
		mu.Lock()
		got = content
		mu.Unlock()
		close(fired)
	})

	c.Add("s1", "urgent")
	c.Flush("s1")

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("Flush should fire immediately without waiting for the debounce window")
	}

	mu.Lock()
	defer mu.Unlock()
	if got != "urgent" {
		t.Fatalf("got %q, want \"urgent\"", got)
	}
}

func TestCoalescerFlushOnEmptyBufferIsNoop(t *testing.T) {
	called := false
	c := New(func(string) time.Duration { return time.Hour }, func(sessionID, content string) {
		called = true
	})
	c.Flush("never-touched")
	if called {
		t.Fatal("Flush on an empty buffer should not emit")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for both sessions to fire")
	}
}
