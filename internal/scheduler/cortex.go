package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/store"
)

// stateCortexLastRun is the state-table key recording cortex's last
// completed run.
const stateCortexLastRun = "cortex:last_run"

const (
	staleAfter        = 90 * 24 * time.Hour
	staleMaxImportance = 3
	recentWindow      = 24 * time.Hour
	consolidateMinMsgs = 4
	indexMinMsgs       = 2
)

func (s *Scheduler) cortexDue(ctx context.Context, now time.Time) (bool, error) {
	val, ok, err := s.cfg.Store.State.Get(ctx, stateCortexLastRun)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return true, nil
	}
	return now.Sub(last) >= time.Duration(s.cfg.CortexIntervalHours)*time.Hour, nil
}

// runCortex executes the four maintenance passes in order.
func (s *Scheduler) runCortex(ctx context.Context, now time.Time) {
	slog.Info("cortex maintenance starting")

	if n, err := s.cfg.Store.Memory.DeleteStale(ctx, now.Add(-staleAfter), staleMaxImportance); err != nil {
		slog.Error("cortex stale cleanup failed", "error", err)
	} else if n > 0 {
		slog.Info("cortex stale cleanup", "deleted", n)
	}

	if n, err := s.cfg.Store.Memory.DeleteDuplicates(ctx); err != nil {
		slog.Error("cortex deduplication failed", "error", err)
	} else if n > 0 {
		slog.Info("cortex deduplication", "deleted", n)
	}

	s.consolidate(ctx, now)
	s.indexSessions(ctx, now)

	if err := s.cfg.Store.State.Set(ctx, stateCortexLastRun, now.Format(time.RFC3339)); err != nil {
		slog.Error("cortex last-run marker write failed", "error", err)
	}
}

// consolidate asks the LLM for 1-3 durable facts per recently active session
// and stores them as fact memories.
func (s *Scheduler) consolidate(ctx context.Context, now time.Time) {
	sessions, err := s.cfg.Store.Tape.ListUpdatedSince(ctx, now.Add(-recentWindow))
	if err != nil {
		slog.Error("cortex consolidation: list sessions failed", "error", err)
		return
	}
	for _, sess := range sessions {
		if sess.MessageCount < consolidateMinMsgs {
			continue
		}
		stateKey := "cortex:consolidated:" + sess.SessionID
		if _, done, _ := s.cfg.Store.State.Get(ctx, stateKey); done {
			continue
		}

		msgs, err := s.cfg.Store.Tape.Load(ctx, sess.SessionID)
		if err != nil {
			slog.Error("cortex consolidation: load tape failed", "session_id", sess.SessionID, "error", err)
			continue
		}
		prompt := "Here is a conversation transcript. Identify 1 to 3 durable facts worth " +
			"remembering long-term, one per line, with no numbering or commentary.\n\n" + transcript(msgs)

		reply, err := s.cfg.Runner.RunEphemeral(ctx, factExtractionPrompt, s.cfg.CortexModel, prompt)
		if err != nil {
			slog.Error("cortex consolidation: LLM call failed", "session_id", sess.SessionID, "error", err)
			continue
		}

		for _, fact := range splitLines(reply) {
			if _, err := s.cfg.Store.Memory.Upsert(ctx, store.MemoryEntry{
				Content:    fact,
				Source:     sess.SessionID,
				Category:   store.CategoryFact,
				Importance: 6,
			}); err != nil {
				slog.Error("cortex consolidation: memory upsert failed", "session_id", sess.SessionID, "error", err)
			}
		}

		if err := s.cfg.Store.State.Set(ctx, stateKey, now.Format(time.RFC3339)); err != nil {
			slog.Error("cortex consolidation: mark done failed", "session_id", sess.SessionID, "error", err)
		}
	}
}

// indexSessions asks the LLM for a short summary per recently active
// session and stores it as a reflection memory keyed by session id.
func (s *Scheduler) indexSessions(ctx context.Context, now time.Time) {
	sessions, err := s.cfg.Store.Tape.ListUpdatedSince(ctx, now.Add(-recentWindow))
	if err != nil {
		slog.Error("cortex indexing: list sessions failed", "error", err)
		return
	}
	for _, sess := range sessions {
		if sess.MessageCount < indexMinMsgs {
			continue
		}
		stateKey := "cortex:indexed:" + sess.SessionID
		if _, done, _ := s.cfg.Store.State.Get(ctx, stateKey); done {
			continue
		}

		msgs, err := s.cfg.Store.Tape.Load(ctx, sess.SessionID)
		if err != nil {
			slog.Error("cortex indexing: load tape failed", "session_id", sess.SessionID, "error", err)
			continue
		}
		prompt := "Summarize this conversation in 1 to 2 sentences.\n\n" + transcript(msgs)

		summary, err := s.cfg.Runner.RunEphemeral(ctx, summaryPrompt, s.cfg.CortexModel, prompt)
		if err != nil {
			slog.Error("cortex indexing: LLM call failed", "session_id", sess.SessionID, "error", err)
			continue
		}
		summary = strings.TrimSpace(summary)
		if summary == "" {
			continue
		}

		if _, err := s.cfg.Store.Memory.Upsert(ctx, store.MemoryEntry{
			Key:        "session-summary:" + sess.SessionID,
			Content:    summary,
			Source:     sess.SessionID,
			Category:   store.CategoryReflection,
			Importance: 5,
		}); err != nil {
			slog.Error("cortex indexing: memory upsert failed", "session_id", sess.SessionID, "error", err)
			continue
		}

		if err := s.cfg.Store.State.Set(ctx, stateKey, now.Format(time.RFC3339)); err != nil {
			slog.Error("cortex indexing: mark done failed", "session_id", sess.SessionID, "error", err)
		}
	}
}

const (
	factExtractionPrompt = "You extract durable facts from conversation transcripts. Reply with only the facts, one per line."
	summaryPrompt        = "You summarize conversation transcripts concisely."
)

// transcript renders a tape as plain text for an LLM maintenance prompt.
func transcript(msgs []agentcore.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
