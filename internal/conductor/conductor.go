// Package conductor implements the central serializer: the single mutable
// Agent, session switching, streaming placeholder edits, group catch-up,
// direct-worker delegation, and ephemeral/persistent prompt primitives
// shared with the scheduler. All work funnels through one claim loop; the
// multi-transport dispatch table is the only fan-out.
package conductor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/coalescer"
	"github.com/nextlevelbuilder/conductor/internal/injection"
	"github.com/nextlevelbuilder/conductor/internal/security"
	"github.com/nextlevelbuilder/conductor/internal/store"
	"github.com/nextlevelbuilder/conductor/internal/transport"
	"github.com/nextlevelbuilder/conductor/pkg/messages"
)

// Canned replies: exactly one string per rejection category. Some
// transports reject empty message bodies, so none of these may be empty.
const (
	cannedInjectionRejected = "I can't act on that message."
	cannedBudgetExceeded    = "I've hit my usage limit for now. Please try again later."
	cannedProviderError     = "Something went wrong generating a response. Please try again."
)

// WorkerBinding routes a whole channel to a named saved worker, bypassing
// the main agent.
type WorkerBinding struct {
	Channel string
	Worker  string
}

// Config wires every collaborator the Conductor needs.
type Config struct {
	Store     *store.Store
	Policy    *security.Policy
	Budget    *security.Budget
	Injection *injection.Detector
	// CoalesceWindow returns the debounce window for a channel; consulted
	// on every arrival so per-channel configuration and hot reloads both
	// take effect immediately.
	CoalesceWindow func(channel string) time.Duration
	Adapters       map[string]transport.Adapter // keyed by Adapter.Name()
	Provider       agentcore.StreamProvider
	Tools          agentcore.ToolExecutor
	Model          string
	SystemPrompt   string

	// WorkerBindings routes specific channels straight to a saved worker.
	WorkerBindings map[string]string // channel -> worker name

	// StreamDebounce returns the minimum interval between placeholder
	// edits for a channel; resolved per message like CoalesceWindow.
	StreamDebounce  func(channel string) time.Duration
	MaxGroupCatchup int
	MaxIterations   int
}

// Conductor owns exactly one mutable Agent and serializes all work onto a
// single goroutine. The main loop is started with Start and fed from each
// transport's Inbound() channel, merged through the coalescer.
type Conductor struct {
	cfg Config

	// currentSession/agent are only ever touched from claimLoop's
	// goroutine; direct-worker delegation builds its own ephemeral Agent
	// and never touches these.
	currentSession string
	agent          *agentcore.Agent

	catchupPrefix string // transient group catch-up text; always cleared on early return
	envelopes     envelopeCache

	coalescer *coalescer.Coalescer
}

// New builds a Conductor with an empty, unloaded Agent and its own internal
// coalescer wired to onCoalesced.
func New(cfg Config) *Conductor {
	if cfg.StreamDebounce == nil {
		cfg.StreamDebounce = func(string) time.Duration { return 300 * time.Millisecond }
	}
	if cfg.CoalesceWindow == nil {
		cfg.CoalesceWindow = func(string) time.Duration { return 1500 * time.Millisecond }
	}
	c := &Conductor{
		cfg: cfg,
		agent: agentcore.New(agentcore.Config{
			Provider:      cfg.Provider,
			Model:         cfg.Model,
			SystemPrompt:  cfg.SystemPrompt,
			Tools:         cfg.Tools,
			MaxIterations: cfg.MaxIterations,
		}),
	}
	// The coalescer only knows session ids; the channel that owns a session
	// is remembered in the envelope cache when the message arrives.
	c.coalescer = coalescer.New(func(sessionID string) time.Duration {
		envelope, _ := c.envelopes.get(sessionID)
		return cfg.CoalesceWindow(envelope.Channel)
	}, c.onCoalesced)
	return c
}

// Start recovers any stale queued work, wires every adapter's inbound
// stream through the coalescer, and runs the claim loop until ctx is
// cancelled.
func (c *Conductor) Start(ctx context.Context) error {
	n, err := c.cfg.Store.Queue.RequeueStale(ctx)
	if err != nil {
		return fmt.Errorf("requeue stale on startup: %w", err)
	}
	if n > 0 {
		slog.Info("requeued stale processing rows on startup", "count", n)
	}

	for _, adapter := range c.cfg.Adapters {
		go c.pumpInbound(ctx, adapter)
	}

	c.claimLoop(ctx)
	return nil
}

// pumpInbound feeds one adapter's inbound messages into the coalescer.
func (c *Conductor) pumpInbound(ctx context.Context, adapter transport.Adapter) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-adapter.Inbound():
			if !ok {
				return
			}
			c.handleIncoming(ctx, msg)
		}
	}
}

// handleIncoming feeds one arrival into the coalescer. Worker-bound
// channels are still enqueued normally; the decision to bypass the main
// agent is made in processMessage, after the claim, so direct-worker
// delegation stays inside the crash-safe queue like every other message.
func (c *Conductor) handleIncoming(ctx context.Context, msg messages.IncomingMessage) {
	_ = ctx
	if binding, routed := c.cfg.WorkerBindings[msg.Channel]; routed && msg.WorkerHint == "" {
		msg.WorkerHint = binding
	}
	// The coalescer's buffer only tracks session id + joined text; the rest
	// of the envelope (channel, sender, reply target, worker hint) is
	// remembered here so onCoalesced can fill it back in when the debounce
	// timer fires.
	c.envelopes.remember(msg)
	c.coalescer.Add(msg.SessionID, msg.Content)
}

// envelopeCache retains the most recent message envelope seen per session,
// since the coalescer itself only carries session id and joined text.
type envelopeCache struct {
	mu    sync.Mutex
	byKey map[string]messages.IncomingMessage
}

func (e *envelopeCache) remember(msg messages.IncomingMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byKey == nil {
		e.byKey = make(map[string]messages.IncomingMessage)
	}
	e.byKey[msg.SessionID] = msg
}

func (e *envelopeCache) get(sessionID string) (messages.IncomingMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, ok := e.byKey[sessionID]
	return msg, ok
}

// onCoalesced is the coalescer's Emit callback (wired in New):
// it enqueues the debounced content as one queued message.
func (c *Conductor) onCoalesced(sessionID, content string) {
	ctx := context.Background()
	envelope, _ := c.envelopes.get(sessionID)
	qmsg := store.QueuedMessage{
		Channel:    envelope.Channel,
		SenderID:   envelope.SenderID,
		SenderName: envelope.SenderName,
		SessionID:  sessionID,
		Content:    content,
		ReplyTo:    envelope.ReplyTo,
	}
	if _, err := c.cfg.Store.Queue.Enqueue(ctx, qmsg); err != nil {
		slog.Error("enqueue failed", "session_id", sessionID, "error", err)
	}
}

// claimLoop is the Conductor's single-writer loop: it is
// the only goroutine that ever touches c.agent.
func (c *Conductor) claimLoop(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg, err := c.cfg.Store.Queue.ClaimNext(ctx)
			if err != nil {
				slog.Error("claim_next failed", "error", err)
				continue
			}
			if msg == nil {
				continue
			}
			c.processMessage(ctx, *msg)
		}
	}
}
