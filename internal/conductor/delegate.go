package conductor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/store"
	"github.com/nextlevelbuilder/conductor/pkg/messages"
)

// runWorkerForQueued handles a claimed message whose envelope carries a
// worker hint. Direct workers are ephemeral: every invocation builds a
// fresh sub-agent loop, never touching c.agent, so the main Conductor
// session in flight is left untouched.
func (c *Conductor) runWorkerForQueued(ctx context.Context, qmsg store.QueuedMessage, envelope messages.IncomingMessage) {
	reply, err := c.runEphemeralWorker(ctx, envelope.WorkerHint, qmsg.SessionID, qmsg.Content)
	if err != nil {
		slog.Error("direct worker delegation failed", "worker", envelope.WorkerHint, "error", err)
		if err := c.cfg.Store.Queue.Complete(ctx, qmsg.ID, false, err.Error()); err != nil {
			slog.Error("complete (worker failed) failed", "error", err)
		}
		return
	}

	if adapter := c.cfg.Adapters[qmsg.Channel]; adapter != nil {
		if _, err := adapter.SendPlaceholder(ctx, qmsg.SessionID, reply); err != nil {
			slog.Error("deliver worker reply failed", "error", err)
		}
	}

	if err := c.persistExchange(ctx, qmsg.SessionID, qmsg.Content, reply); err != nil {
		slog.Error("persist worker exchange failed", "session_id", qmsg.SessionID, "error", err)
	}

	if err := c.cfg.Store.Queue.Complete(ctx, qmsg.ID, true, ""); err != nil {
		slog.Error("complete (worker) failed", "error", err)
	}
}

// runEphemeralWorker builds a fresh Agent around the named saved worker and
// runs one turn. The scheduler's cron "isolated" mode uses RunEphemeral
// instead, which needs no saved worker.
func (c *Conductor) runEphemeralWorker(ctx context.Context, workerName, sessionID, input string) (string, error) {
	worker, err := c.cfg.Store.Workers.Get(ctx, workerName)
	if err != nil {
		return "", fmt.Errorf("lookup worker %q: %w", workerName, err)
	}
	if worker == nil {
		return "", fmt.Errorf("no saved worker named %q", workerName)
	}

	agent := agentcore.New(agentcore.Config{
		Provider:     c.cfg.Provider,
		Model:        worker.Model,
		SystemPrompt: worker.SystemPrompt,
		Tools:        c.cfg.Tools,
		SessionID:    sessionID,
	})
	return agent.Run(ctx, input)
}

// RunEphemeral runs a fresh, throwaway agent loop with the main system
// prompt and no prior history, for the scheduler's cron "isolated" mode and
// cortex maintenance passes.
func (c *Conductor) RunEphemeral(ctx context.Context, systemPrompt, model, input string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = c.cfg.SystemPrompt
	}
	if model == "" {
		model = c.cfg.Model
	}
	agent := agentcore.New(agentcore.Config{
		Provider:     c.cfg.Provider,
		Model:        model,
		SystemPrompt: systemPrompt,
		Tools:        c.cfg.Tools,
	})
	return agent.Run(ctx, input)
}

const persistentPromptMaxTurns = 5

// RunPersistent loads sessionID's tape, runs the agent loop up to a hard
// cap of turns, and saves the result back, without touching the Conductor's
// currently loaded c.agent. An empty model falls back to the Conductor's
// configured model.
func (c *Conductor) RunPersistent(ctx context.Context, sessionID, model, input string) (string, error) {
	msgs, err := c.cfg.Store.Tape.Load(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load tape for %q: %w", sessionID, err)
	}
	if model == "" {
		model = c.cfg.Model
	}

	agent := agentcore.New(agentcore.Config{
		Provider:      c.cfg.Provider,
		Model:         model,
		SystemPrompt:  c.cfg.SystemPrompt,
		Tools:         c.cfg.Tools,
		MaxIterations: persistentPromptMaxTurns,
		SessionID:     sessionID,
	})
	agent.Load(msgs)

	reply, err := agent.Run(ctx, input)
	if err != nil {
		return "", err
	}
	if err := c.cfg.Store.Tape.Save(ctx, sessionID, agent.Messages()); err != nil {
		return "", fmt.Errorf("save tape for %q: %w", sessionID, err)
	}
	return reply, nil
}

// persistExchange appends a user/assistant pair directly to a session's
// tape without loading it into c.agent. Used for direct-worker delegation,
// whose exchanges belong to the target session's history even though the
// main agent never saw them.
func (c *Conductor) persistExchange(ctx context.Context, sessionID, userContent, assistantContent string) error {
	msgs, err := c.cfg.Store.Tape.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	msgs = append(msgs,
		agentcore.Message{Role: agentcore.RoleUser, Content: userContent},
		agentcore.Message{Role: agentcore.RoleAssistant, Content: assistantContent},
	)
	return c.cfg.Store.Tape.Save(ctx, sessionID, msgs)
}
