package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/conductor"
	"github.com/nextlevelbuilder/conductor/internal/config"
	"github.com/nextlevelbuilder/conductor/internal/injection"
	"github.com/nextlevelbuilder/conductor/internal/providers"
	"github.com/nextlevelbuilder/conductor/internal/scheduler"
	"github.com/nextlevelbuilder/conductor/internal/security"
	"github.com/nextlevelbuilder/conductor/internal/store"
	"github.com/nextlevelbuilder/conductor/internal/store/sqlite"
	"github.com/nextlevelbuilder/conductor/internal/tools"
	"github.com/nextlevelbuilder/conductor/internal/transport"
	"github.com/nextlevelbuilder/conductor/internal/transport/discord"
	"github.com/nextlevelbuilder/conductor/internal/transport/slack"
	"github.com/nextlevelbuilder/conductor/internal/transport/telegram"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Conductor process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func setupLogger(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Dev {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// denyPatterns merges the built-in destructive-command catalogue with the
// operator's configured patterns.
func denyPatterns(cfg *config.Config) []string {
	merged := append([]string{}, security.BuiltinShellDenyPatterns...)
	return append(merged, cfg.Security.DenyPatterns...)
}

func toolPolicies(tools map[string]config.ToolConfig) map[string]security.ToolPolicy {
	out := make(map[string]security.ToolPolicy, len(tools))
	for name, t := range tools {
		out[name] = security.ToolPolicy{
			Enabled:      t.Enabled,
			AllowedPaths: t.AllowedPaths,
			AllowedHosts: t.AllowedHosts,
		}
	}
	return out
}

// wiredExecutor fans a tool call out to the security-wrapped registry for
// every built-in tool and to an unwrapped SubagentTool for worker
// delegation, whose inner tools are already wrapped.
type wiredExecutor struct {
	registry *tools.Registry
	subagent tools.SubagentTool
}

func (w *wiredExecutor) Definitions() []agentcore.ToolDefinition {
	defs := append([]agentcore.ToolDefinition{}, w.registry.Definitions()...)
	return append(defs, tools.SubagentDefinition())
}

func (w *wiredExecutor) Execute(ctx context.Context, sessionID string, call agentcore.ToolCall) (string, bool) {
	if call.Name == string(security.ToolSubagent) {
		return w.subagent.Execute(ctx, sessionID, call.Arguments)
	}
	return w.registry.Execute(ctx, sessionID, call)
}

func runServe() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	setupLogger(cfg, verbose)

	var liveCfg atomic.Pointer[config.Config]
	liveCfg.Store(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, cfg.Persistence.DBPath, sqlite.Options{
		VectorDir:     cfg.Persistence.Vector.Dir,
		EmbeddingFunc: providers.ResolveEmbeddingFunc(cfg.Persistence.Vector),
	})
	if err != nil {
		return err
	}
	defer db.Close()
	st := db.Stores()

	if err := seedCronJobsAndWorkers(ctx, st, cfg); err != nil {
		return err
	}

	policy := security.New(toolPolicies(cfg.Security.Tools), denyPatterns(cfg))
	budget := security.NewBudget(cfg.Agent.TokensPerDay, cfg.Agent.TurnsPerSession)

	var judge injection.Judge // L3 judge requires a provider call; left unset (LLMJudge config flag is advisory until one is wired).
	detector := injection.New(injection.Config{
		Enabled:            cfg.Security.Injection.Enabled,
		Action:             injection.Action(cfg.Security.Injection.Action),
		ExtraPatterns:      cfg.Security.Injection.ExtraPatterns,
		HeuristicThreshold: cfg.Security.Injection.HeuristicThreshold,
		LLMJudgeThreshold:  cfg.Security.Injection.LLMJudgeThreshold,
		Judge:              judge,
	})

	provider, err := providers.New(cfg.Agent)
	if err != nil {
		return err
	}

	wrapped := []security.Tool{
		tools.ReadFileTool{},
		tools.WriteFileTool{},
		tools.EditFileTool{},
		tools.ListFilesTool{},
		tools.SearchTool{MaxMatches: 200},
		tools.HTTPTool{Client: &http.Client{Timeout: 15 * time.Second}},
		tools.ShellTool{},
		tools.MemorySearchTool{Memory: st.Memory},
		tools.MemoryGetTool{Memory: st.Memory},
	}
	defs := []agentcore.ToolDefinition{
		tools.ReadFileDefinition(),
		tools.WriteFileDefinition(),
		tools.EditFileDefinition(),
		tools.ListFilesDefinition(),
		tools.SearchDefinition(),
		tools.HTTPDefinition(),
		tools.ShellDefinition(),
		tools.MemorySearchDefinition(),
		tools.MemoryGetDefinition(),
	}
	wrapper := security.NewWrapper(policy, st.Audit, wrapped...)
	registry := tools.NewRegistry(wrapper, defs)
	executor := &wiredExecutor{
		registry: registry,
		subagent: tools.SubagentTool{Provider: provider, Tools: registry, Workers: st.Workers},
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return err
	}

	// Both windows resolve through liveCfg on every call, so a config
	// reload (which stores the next config below) takes effect without
	// restarting anything.
	channelConfig := func(name string) config.ChannelConfig {
		channels := liveCfg.Load().Channels
		switch name {
		case "discord":
			return channels.Discord
		case "slack":
			return channels.Slack
		default:
			return channels.Telegram
		}
	}

	cond := conductor.New(conductor.Config{
		Store:     st,
		Policy:    policy,
		Budget:    budget,
		Injection: detector,
		CoalesceWindow: func(channel string) time.Duration {
			return time.Duration(channelConfig(channel).DebounceMS) * time.Millisecond
		},
		Adapters:       adapters,
		Provider:       provider,
		Tools:          executor,
		Model:          cfg.Agent.Model,
		SystemPrompt:   cfg.Agent.Persona,
		WorkerBindings: workerBindings(cfg),
		StreamDebounce: func(channel string) time.Duration {
			return time.Duration(channelConfig(channel).StreamDebounceMS) * time.Millisecond
		},
		MaxGroupCatchup: 20,
		MaxIterations:   20,
	})

	watcher, err := config.NewWatcher(resolveConfigPath(), func(next *config.Config) {
		// Storing next is what reloads the per-channel debounce and
		// stream-debounce windows: both read liveCfg on every message.
		liveCfg.Store(next)
		policy.Reload(toolPolicies(next.Security.Tools), denyPatterns(next))
		budget.SetDailyLimit(next.Agent.TokensPerDay)
		budget.SetTurnLimit(next.Agent.TurnsPerSession)
	})
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	sched := scheduler.New(scheduler.Config{
		Store:               st,
		Runner:              cond,
		Adapters:             adapters,
		TickInterval:         time.Duration(cfg.Scheduler.TickSecs) * time.Second,
		CortexEnabled:        cfg.Scheduler.Cortex.Enabled,
		CortexIntervalHours:  cfg.Scheduler.Cortex.IntervalHours,
		CortexModel:          cfg.Scheduler.Cortex.Model,
		SchedulerModel:       cfg.Scheduler.Cortex.Model,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- cond.Start(ctx) }()
	if cfg.Scheduler.Enabled {
		go sched.Run(ctx)
	}

	for _, adapter := range adapters {
		adapter := adapter
		go func() {
			if err := adapter.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("transport adapter stopped", "adapter", adapter.Name(), "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func buildAdapters(cfg *config.Config) (map[string]transport.Adapter, error) {
	adapters := make(map[string]transport.Adapter)

	if cfg.Channels.Telegram.Enabled {
		a, err := telegram.New(telegram.Config{Token: cfg.Channels.Telegram.Token, Allowlist: cfg.Channels.Telegram.Allowlist})
		if err != nil {
			return nil, err
		}
		adapters[a.Name()] = a
	}
	if cfg.Channels.Discord.Enabled {
		a, err := discord.New(discord.Config{Token: cfg.Channels.Discord.Token, Allowlist: cfg.Channels.Discord.Allowlist})
		if err != nil {
			return nil, err
		}
		adapters[a.Name()] = a
	}
	if cfg.Channels.Slack.Enabled {
		a, err := slack.New(slack.Config{BotToken: cfg.Channels.Slack.Token, AppToken: os.Getenv("SLACK_APP_TOKEN"), Allowlist: cfg.Channels.Slack.Allowlist})
		if err != nil {
			return nil, err
		}
		adapters[a.Name()] = a
	}
	return adapters, nil
}

func workerBindings(cfg *config.Config) map[string]string {
	out := map[string]string{}
	if cfg.Channels.Telegram.WorkerBinding != "" {
		out["telegram"] = cfg.Channels.Telegram.WorkerBinding
	}
	if cfg.Channels.Discord.WorkerBinding != "" {
		out["discord"] = cfg.Channels.Discord.WorkerBinding
	}
	if cfg.Channels.Slack.WorkerBinding != "" {
		out["slack"] = cfg.Channels.Slack.WorkerBinding
	}
	return out
}

func seedCronJobsAndWorkers(ctx context.Context, st *store.Store, cfg *config.Config) error {
	for _, j := range cfg.Scheduler.CronJobs {
		err := st.Cron.UpsertJob(ctx, store.CronJob{
			Name:          j.Name,
			Schedule:      j.Schedule,
			Prompt:        j.Prompt,
			TargetChannel: j.TargetChannel,
			SessionMode:   store.SessionMode(j.SessionMode),
			Enabled:       j.Enabled,
		})
		if err != nil {
			return err
		}
	}
	for _, w := range cfg.Workers {
		err := st.Workers.Upsert(ctx, store.SavedWorker{
			Name:         w.Name,
			SystemPrompt: w.SystemPrompt,
			Model:        w.Model,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
