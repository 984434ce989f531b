package config

import (
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strings"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/conductor/internal/errs"
)

var envToken = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads path, expands `${NAME}` and `~`, and decodes as JSON5 over a
// Default() base so unset fields keep their defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.Config, fmt.Errorf("read config: %w", err))
	}

	expanded := expandEnv(string(raw))

	cfg := Default()
	if err := json5.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errs.Wrap(errs.Config, fmt.Errorf("parse config: %w", err))
	}

	cfg.Persistence.DBPath = expandHome(cfg.Persistence.DBPath)
	cfg.Persistence.Vector.Dir = expandHome(cfg.Persistence.Vector.Dir)
	for i, dir := range cfg.Agent.SkillsDirs {
		cfg.Agent.SkillsDirs[i] = expandHome(dir)
	}

	if err := validate(cfg); err != nil {
		return nil, errs.Wrap(errs.Config, err)
	}
	return cfg, nil
}

func expandEnv(s string) string {
	return envToken.ReplaceAllStringFunc(s, func(match string) string {
		name := envToken.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	u, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return u.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return u.HomeDir + path[1:]
	}
	return path
}

// validate rejects configurations that would make the process unable to do
// anything useful.
func validate(cfg *Config) error {
	if cfg.Agent.Provider == "" {
		return fmt.Errorf("agent.provider is required")
	}
	if cfg.Persistence.DBPath == "" {
		return fmt.Errorf("persistence.db_path is required")
	}
	action := cfg.Security.Injection.Action
	if action != "" && action != "warn" && action != "block" && action != "log" {
		return fmt.Errorf("security.injection.action must be one of warn, block, log, got %q", action)
	}
	return nil
}
