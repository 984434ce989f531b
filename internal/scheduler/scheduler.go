// Package scheduler implements the tick loop driving cron jobs and cortex
// memory maintenance. It reuses the Conductor's ephemeral and
// persistent prompt primitives rather than owning any Agent state of its
// own, the same way internal/conductor's direct-worker delegation does.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/conductor/internal/session"
	"github.com/nextlevelbuilder/conductor/internal/store"
	"github.com/nextlevelbuilder/conductor/internal/transport"
)

// Runner is the subset of *conductor.Conductor the scheduler depends on.
// Declared locally to avoid an import cycle (conductor never needs to know
// about the scheduler).
type Runner interface {
	RunEphemeral(ctx context.Context, systemPrompt, model, input string) (string, error)
	RunPersistent(ctx context.Context, sessionID, model, input string) (string, error)
}

// Config wires the scheduler's collaborators.
type Config struct {
	Store    *store.Store
	Runner   Runner
	Adapters map[string]transport.Adapter // keyed by Adapter.Name(), for cron delivery

	TickInterval time.Duration

	CortexEnabled       bool
	CortexIntervalHours int
	CortexModel         string

	SchedulerModel string // cheap model for cron runs
}

// Scheduler drives the single tick loop.
type Scheduler struct {
	cfg   Config
	gx    *gronx.Gronx
	fired map[string]string // job name -> last-fired "YYYY-MM-DDTHH:MM" minute, dedupes same-minute ticks
}

// New builds a Scheduler with defaults filled in.
func New(cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	if cfg.CortexIntervalHours <= 0 {
		cfg.CortexIntervalHours = 24
	}
	return &Scheduler{cfg: cfg, gx: gronx.New(), fired: make(map[string]string)}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	if err := s.runDueCronJobs(ctx, now); err != nil {
		slog.Error("cron tick failed", "error", err)
	}

	if s.cfg.CortexEnabled {
		due, err := s.cortexDue(ctx, now)
		if err != nil {
			slog.Error("cortex due-check failed", "error", err)
		} else if due {
			s.runCortex(ctx, now)
		}
	}
}

// deliverToChannel resolves targetChannel's transport adapter from its
// session-id prefix and posts content as a fresh message; the full string
// is the session id used for routing.
func (s *Scheduler) deliverToChannel(ctx context.Context, targetChannel, content string) {
	if targetChannel == "" {
		return
	}
	adapterName := session.Adapter(targetChannel)
	adapter := s.cfg.Adapters[adapterName]
	if adapter == nil {
		slog.Error("no adapter for cron target channel", "target_channel", targetChannel, "adapter", adapterName)
		return
	}
	if _, err := adapter.SendPlaceholder(ctx, targetChannel, content); err != nil {
		slog.Error("cron delivery failed", "target_channel", targetChannel, "error", err)
	}
}
