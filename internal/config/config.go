// Package config implements the configuration surface: a JSON5 file with
// `${NAME}` environment-variable expansion and `~` home-directory
// expansion, hot-reloaded for the policy, budget and coalescer. JSON5
// rather than plain JSON because the file is meant to be hand-edited, and
// JSON5 allows comments and trailing commas.
package config

import "time"

// AgentConfig configures the LLM-facing side of the Conductor.
type AgentConfig struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	APIKey       string `json:"api_key"`
	Persona      string `json:"persona"`
	SkillsDirs   []string `json:"skills_dirs"`
	MaxTokens    int    `json:"max_tokens"`
	Thinking     bool   `json:"thinking"`
	TokensPerDay int64  `json:"tokens_per_day"`
	TurnsPerSession int64 `json:"turns_per_session"`
}

// ChannelConfig is shared by the telegram/discord/slack blocks.
type ChannelConfig struct {
	Enabled         bool     `json:"enabled"`
	Token           string   `json:"token"`
	Allowlist       []string `json:"allowlist"`
	DebounceMS      int      `json:"debounce_ms"`
	StreamDebounceMS int     `json:"stream_debounce_ms"`
	WorkerBinding   string   `json:"worker_binding"` // routes this channel directly to a named worker
}

// ToolConfig is one entry of security.tools in the config file, keyed by
// config tool name ("shell", "write_file", "http", ...).
type ToolConfig struct {
	Enabled      bool     `json:"enabled"`
	AllowedPaths []string `json:"allowed_paths"`
	AllowedHosts []string `json:"allowed_hosts"`
}

// SecurityConfig is the security block: deny patterns plus per-tool
// profiles.
type SecurityConfig struct {
	DenyPatterns []string              `json:"deny_patterns"`
	Tools        map[string]ToolConfig `json:"tools"`
	Injection    InjectionConfig       `json:"injection"`
}

// InjectionConfig is the security.injection block.
type InjectionConfig struct {
	Enabled            bool     `json:"enabled"`
	Action             string   `json:"action"` // warn | block | log
	ExtraPatterns      []string `json:"extra_patterns"`
	HeuristicThreshold float64  `json:"heuristic_threshold"`
	LLMJudgeThreshold  float64  `json:"llm_judge_threshold"`
	LLMJudge           bool     `json:"llm_judge"`
}

// CortexConfig is the scheduler.cortex block.
type CortexConfig struct {
	Enabled      bool   `json:"enabled"`
	IntervalHours int   `json:"interval_hours"`
	Model        string `json:"model"`
}

// CronJobConfig is one entry of scheduler.cron_jobs.
type CronJobConfig struct {
	Name          string `json:"name"`
	Schedule      string `json:"schedule"`
	Prompt        string `json:"prompt"`
	TargetChannel string `json:"target_channel"`
	SessionMode   string `json:"session_mode"`
	Enabled       bool   `json:"enabled"`
}

// SchedulerConfig is the scheduler block.
type SchedulerConfig struct {
	Enabled       bool            `json:"enabled"`
	TickSecs      int             `json:"tick_secs"`
	Cortex        CortexConfig    `json:"cortex"`
	CronJobs      []CronJobConfig `json:"cron_jobs"`
}

// WorkerConfig is one named sub-agent under workers.
type WorkerConfig struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`
}

// WebConfig is the web block for the read-only admin surface.
type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Bind    string `json:"bind"`
}

// PersistenceConfig is the persistence block, including the optional
// vector-shadow switch.
type PersistenceConfig struct {
	DBPath string       `json:"db_path"`
	Vector VectorConfig `json:"vector"`
}

// VectorConfig gates the chromem-go semantic-search shadow.
type VectorConfig struct {
	Enabled   bool   `json:"enabled"`
	Dir       string `json:"dir"`
	Provider  string `json:"provider"` // "openai" or "openai_compat"
	Model     string `json:"model"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
}

// Config is the top-level decoded configuration file.
type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Channels struct {
		Telegram ChannelConfig `json:"telegram"`
		Discord  ChannelConfig `json:"discord"`
		Slack    ChannelConfig `json:"slack"`
	} `json:"channels"`
	Security    SecurityConfig    `json:"security"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Workers     []WorkerConfig    `json:"workers"`
	Web         WebConfig         `json:"web"`
	Persistence PersistenceConfig `json:"persistence"`

	// Dev toggles the ambient logging handler between slog.JSONHandler
	// (production) and slog.TextHandler (human-readable, local runs).
	Dev bool `json:"dev"`
}

// Default returns a Config with every field at its documented default.
func Default() *Config {
	cfg := &Config{}
	cfg.Agent.MaxTokens = 4096
	cfg.Channels.Telegram.DebounceMS = 1500
	cfg.Channels.Telegram.StreamDebounceMS = 300
	cfg.Channels.Discord.DebounceMS = 1500
	cfg.Channels.Discord.StreamDebounceMS = 300
	cfg.Channels.Slack.DebounceMS = 1500
	cfg.Channels.Slack.StreamDebounceMS = 300
	cfg.Security.Injection.HeuristicThreshold = 0.6
	cfg.Security.Injection.Action = "block"
	cfg.Scheduler.TickSecs = 60
	cfg.Scheduler.Cortex.IntervalHours = 24
	cfg.Persistence.DBPath = "~/.conductor/conductor.db"
	return cfg
}

// ReloadWindow is the debounce applied to config watcher reloads.
const ReloadWindow = 5 * time.Second
