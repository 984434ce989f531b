package conductor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/errs"
	"github.com/nextlevelbuilder/conductor/internal/injection"
	"github.com/nextlevelbuilder/conductor/internal/security"
	"github.com/nextlevelbuilder/conductor/internal/store"
	"github.com/nextlevelbuilder/conductor/internal/transport"
)

// processMessage runs one claimed queue row through pre-checks, session
// switching, group catch-up, streaming, and completion. It is only ever
// called from claimLoop, so it is the sole writer of c.agent /
// c.currentSession.
func (c *Conductor) processMessage(ctx context.Context, qmsg store.QueuedMessage) {
	envelope, _ := c.envelopes.get(qmsg.SessionID)

	// preCheck may rewrite qmsg.Content (warn action annotates the prompt
	// in place).
	if rejected, reply := c.preCheck(ctx, &qmsg); rejected {
		c.finishRejected(ctx, qmsg, reply)
		return
	}

	if envelope.WorkerHint != "" {
		c.runWorkerForQueued(ctx, qmsg, envelope)
		return
	}

	c.switchSession(ctx, qmsg.SessionID)

	// Group catch-up (transient, cleared on every early return path below).
	if envelope.IsGroup {
		c.catchupPrefix = c.buildCatchup(qmsg.Content)
	}

	adapter := c.cfg.Adapters[qmsg.Channel]
	if adapter == nil {
		slog.Error("no adapter registered for channel", "channel", qmsg.Channel)
		c.failMessage(ctx, qmsg, "")
		return
	}

	handle, err := adapter.SendPlaceholder(ctx, qmsg.SessionID, "...")
	if err != nil {
		slog.Error("send placeholder failed", "error", err, "session_id", qmsg.SessionID)
	}

	prompt := qmsg.Content
	if c.catchupPrefix != "" {
		prompt = c.catchupPrefix + "\n\n" + qmsg.Content
	}

	c.runStreaming(ctx, qmsg, adapter, handle, prompt)
}

// preCheck runs injection L1+L2 synchronously, then the budget turn check,
// then the optional L3 async judge, in that order. Returns (true, reply)
// if the message should be rejected outright.
func (c *Conductor) preCheck(ctx context.Context, qmsg *store.QueuedMessage) (bool, string) {
	verdict := c.cfg.Injection.InspectSync(qmsg.Content)
	if verdict.Detected {
		if rejected, reply := c.applyVerdict(ctx, qmsg, verdict); rejected {
			return true, reply
		}
	}

	if status := c.cfg.Budget.BumpTurn(qmsg.SessionID); status == security.Exceeded {
		c.auditEvent(ctx, qmsg.SessionID, store.AuditBudgetExceeded, "", "turns_per_session")
		return true, cannedBudgetExceeded
	}

	if !verdict.Detected && c.cfg.Injection.NeedsJudge(verdict) {
		v2, err := c.cfg.Injection.InspectAsync(ctx, qmsg.Content)
		if err != nil {
			slog.Error("injection L3 judge failed", "error", err)
		} else if v2.Detected {
			if rejected, reply := c.applyVerdict(ctx, qmsg, v2); rejected {
				return true, reply
			}
		}
	}

	return false, ""
}

// applyVerdict audits a detection and applies the configured action: block
// rejects, warn annotates the prompt in place, log passes through unchanged.
func (c *Conductor) applyVerdict(ctx context.Context, qmsg *store.QueuedMessage, verdict injection.Verdict) (bool, string) {
	c.auditEvent(ctx, qmsg.SessionID, store.AuditInputRejected, "", fmt.Sprintf("layer=%s score=%.2f", verdict.Layer, verdict.Score))
	switch verdict.Action {
	case injection.ActionBlock:
		return true, cannedInjectionRejected
	case injection.ActionWarn:
		qmsg.Content = "[flagged: possible prompt injection]\n" + qmsg.Content
	case injection.ActionLog:
		// The audit event above is the only effect.
	}
	return false, ""
}

func (c *Conductor) auditEvent(ctx context.Context, sessionID string, eventType store.AuditEventType, toolName, detail string) {
	if c.cfg.Store == nil || c.cfg.Store.Audit == nil {
		return
	}
	if err := c.cfg.Store.Audit.Append(ctx, store.AuditEvent{
		SessionID: sessionID,
		EventType: eventType,
		ToolName:  toolName,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		slog.Error("audit append failed", "error", err)
	}
}

// finishRejected delivers the canned reply for a rejected message and
// completes its queue row as done: a rejection is not a processing failure.
func (c *Conductor) finishRejected(ctx context.Context, qmsg store.QueuedMessage, reply string) {
	c.catchupPrefix = ""
	if adapter := c.cfg.Adapters[qmsg.Channel]; adapter != nil {
		if _, err := adapter.SendPlaceholder(ctx, qmsg.SessionID, reply); err != nil {
			slog.Error("failed to deliver rejection reply", "error", err)
		}
	}
	if err := c.cfg.Store.Queue.Complete(ctx, qmsg.ID, true, ""); err != nil {
		slog.Error("complete (rejected) failed", "error", err)
	}
}

// switchSession saves the previously loaded session's tape, then loads
// sessionID's tape into the Agent.
func (c *Conductor) switchSession(ctx context.Context, sessionID string) {
	if c.currentSession == sessionID {
		return
	}
	if c.currentSession != "" {
		if err := c.cfg.Store.Tape.Save(ctx, c.currentSession, c.agent.Messages()); err != nil {
			slog.Error("tape save on session switch failed", "session_id", c.currentSession, "error", err)
		}
		c.cfg.Budget.ResetSession(c.currentSession)
	}
	c.agent.Clear()
	msgs, err := c.cfg.Store.Tape.Load(ctx, sessionID)
	if err != nil {
		slog.Error("tape load on session switch failed", "session_id", sessionID, "error", err)
		msgs = nil
	}
	c.agent.Load(msgs)
	c.agent.SetSession(sessionID)
	c.currentSession = sessionID
}

// buildCatchup formats a synthetic prefix summarizing the coalesced content
// arriving for a group session, capped at MaxGroupCatchup lines.
func (c *Conductor) buildCatchup(content string) string {
	max := c.cfg.MaxGroupCatchup
	if max <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) <= 1 {
		return ""
	}
	if len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	return "Catching up on recent messages:\n" + strings.Join(lines, "\n")
}

// runStreaming drives the Agent's streaming turn, debouncing placeholder
// edits.
func (c *Conductor) runStreaming(ctx context.Context, qmsg store.QueuedMessage, adapter transport.Adapter, handle transport.PlaceholderHandle, prompt string) {
	var buf strings.Builder
	debounce := c.cfg.StreamDebounce(qmsg.Channel)
	lastEdit := time.Now()

	// Intermediate edits are truncated at the platform limit; the adapter's
	// own multi-part split is reserved for the final edit, so overflow
	// chunks aren't posted while text is still streaming.
	flush := func() {
		if time.Since(lastEdit) < debounce {
			return
		}
		text := truncateForTransport(buf.String(), adapter.CharacterLimit())
		if text == "" {
			return
		}
		if err := adapter.EditMessage(ctx, handle, text); err != nil {
			slog.Error("edit_message failed", "error", err, "session_id", qmsg.SessionID)
		}
		lastEdit = time.Now()
	}

	var lastErr error
	var totalTokens int64
	for ev := range c.agent.RunStream(ctx, prompt) {
		switch ev.Type {
		case agentcore.EventTurnStart:
			buf.Reset()
		case agentcore.EventTextDelta:
			buf.WriteString(ev.TextDelta)
			flush()
		case agentcore.EventTurnEnd:
			// Usage is attached to the turn-end event only; the same value
			// rides along on EventDone, so counting it anywhere else would
			// double-charge the turn.
			if ev.Usage != nil {
				totalTokens += ev.Usage.PromptTokens + ev.Usage.CompletionTokens
			}
		case agentcore.EventError:
			lastErr = ev.Err
		}
	}

	if lastErr != nil {
		c.handleTurnFailure(ctx, qmsg, adapter, handle, lastErr)
		return
	}

	// Charge the daily budget only once the turn's actual token cost is
	// known, replacing the already-streamed reply with the canned rejection
	// if it would cross the limit. The turn still completes normally
	// otherwise.
	if c.cfg.Budget.CheckAndCharge(totalTokens) == security.Exceeded {
		c.auditEvent(ctx, qmsg.SessionID, store.AuditBudgetExceeded, "", fmt.Sprintf("tokens=%d", totalTokens))
		if err := adapter.EditMessage(ctx, handle, cannedBudgetExceeded); err != nil {
			slog.Error("failed to deliver budget rejection", "error", err)
		}
		if err := c.cfg.Store.Queue.Complete(ctx, qmsg.ID, true, ""); err != nil {
			slog.Error("complete (budget exceeded) failed", "error", err)
		}
		c.catchupPrefix = ""
		return
	}

	// Final edit: hand the adapter the full text so it can split across
	// multiple messages when the reply exceeds one platform message.
	if final := buf.String(); final != "" {
		if err := adapter.EditMessage(ctx, handle, final); err != nil {
			slog.Error("final edit failed", "error", err, "session_id", qmsg.SessionID)
		}
	}
	if err := c.cfg.Store.Queue.Complete(ctx, qmsg.ID, true, ""); err != nil {
		slog.Error("complete failed", "error", err)
	}
	c.catchupPrefix = ""

	if err := c.cfg.Store.Tape.Save(ctx, qmsg.SessionID, c.agent.Messages()); err != nil {
		// Persistence failure during tape save is fatal for the session:
		// drop the in-memory session id so the next message reloads from the
		// last known good tape.
		slog.Error("tape save failed, dropping in-memory session", "session_id", qmsg.SessionID, "error", err)
		c.currentSession = ""
	}
}

func (c *Conductor) handleTurnFailure(ctx context.Context, qmsg store.QueuedMessage, adapter transport.Adapter, handle transport.PlaceholderHandle, turnErr error) {
	slog.Error("agent turn failed", "session_id", qmsg.SessionID, "category", errs.CategoryOf(turnErr), "error", turnErr)
	if err := adapter.EditMessage(ctx, handle, cannedProviderError); err != nil {
		slog.Error("failed to deliver error reply", "error", err)
	}
	if err := c.cfg.Store.Queue.Complete(ctx, qmsg.ID, false, turnErr.Error()); err != nil {
		slog.Error("complete (failed) failed", "error", err)
	}
	c.catchupPrefix = ""
}

func (c *Conductor) failMessage(ctx context.Context, qmsg store.QueuedMessage, errMsg string) {
	if err := c.cfg.Store.Queue.Complete(ctx, qmsg.ID, false, errMsg); err != nil {
		slog.Error("complete (failed) failed", "error", err)
	}
	c.catchupPrefix = ""
}

// truncateForTransport caps text at limit runes, respecting UTF-8
// boundaries.
func truncateForTransport(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
