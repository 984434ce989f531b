// Package security implements the security policy, the budget tracker and
// the tool wrapper: per-tool profiles, config-name aliasing, deny-pattern
// scanning, and lock-free usage counters.
package security

import (
	"net/url"
	"strings"
	"sync"
)

// ToolName is the wrapper-facing canonical name. Config files use their own
// names; aliasToInternal/internalToAlias translate between the two so
// operators can write `shell` in config while the agent-facing tool stays
// named `bash`.
type ToolName string

const (
	ToolReadFile  ToolName = "read_file"
	ToolWriteFile ToolName = "write_file"
	ToolEditFile  ToolName = "edit_file"
	ToolListFiles ToolName = "list_files"
	ToolSearch    ToolName = "search"
	ToolHTTP      ToolName = "http"
	ToolBash      ToolName = "bash"
	ToolMemorySearch ToolName = "memory_search"
	ToolMemoryGet    ToolName = "memory_get"
	ToolSubagent     ToolName = "subagent"
)

// fileTools is consulted for the allowed-path check.
var fileTools = map[ToolName]bool{
	ToolReadFile:  true,
	ToolWriteFile: true,
	ToolEditFile:  true,
	ToolListFiles: true,
	ToolSearch:    true,
}

// shellTools is consulted for the deny-pattern scan.
var shellTools = map[ToolName]bool{
	ToolBash: true,
}

// configAliases maps an internal tool name to the name operators use in
// config. edit_file shares write_file's config entry since both mutate
// files under the same allowlist.
var configAliases = map[ToolName]string{
	ToolBash:     "shell",
	ToolEditFile: "write_file",
}

func configName(t ToolName) string {
	if alias, ok := configAliases[t]; ok {
		return alias
	}
	return string(t)
}

// ToolPolicy is the per-tool configuration surface.
type ToolPolicy struct {
	Enabled      bool
	AllowedPaths []string // consulted only for file tools
	AllowedHosts []string // consulted only for the http tool
}

// Policy is the hot-reloadable access-control object the Tool Wrapper
// consults on every call. Held behind an RWMutex: many concurrent readers
// on the tool-call hot path, one writer on config reload.
type Policy struct {
	mu sync.RWMutex

	tools        map[string]ToolPolicy // keyed by config name
	denyPatterns []string
}

// New builds a Policy from config-shaped maps. tools is keyed by config
// tool name (e.g. "shell", "write_file"), matching the shape Load
// (internal/config) decodes JSON5 into.
func New(tools map[string]ToolPolicy, denyPatterns []string) *Policy {
	copied := make(map[string]ToolPolicy, len(tools))
	for k, v := range tools {
		copied[k] = v
	}
	return &Policy{
		tools:        copied,
		denyPatterns: append([]string{}, denyPatterns...),
	}
}

// Reload atomically swaps in new policy data on config hot-reload.
func (p *Policy) Reload(tools map[string]ToolPolicy, denyPatterns []string) {
	copied := make(map[string]ToolPolicy, len(tools))
	for k, v := range tools {
		copied[k] = v
	}
	p.mu.Lock()
	p.tools = copied
	p.denyPatterns = append([]string{}, denyPatterns...)
	p.mu.Unlock()
}

func (p *Policy) toolPolicy(name ToolName) (ToolPolicy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tp, ok := p.tools[configName(name)]
	return tp, ok
}

// Enabled reports whether name is enabled. A tool with no configured entry
// is enabled by default: absence of configuration is not a denial, only an
// explicit enabled=false is.
func (p *Policy) Enabled(name ToolName) bool {
	tp, ok := p.toolPolicy(name)
	if !ok {
		return true
	}
	return tp.Enabled
}

// DeniedByPattern reports whether command matches any configured
// substring deny-pattern. Only meaningful for
// shell-family tools; callers gate on IsShellTool first.
func (p *Policy) DeniedByPattern(command string) (pattern string, denied bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pat := range p.denyPatterns {
		if pat == "" {
			continue
		}
		if strings.Contains(command, pat) {
			return pat, true
		}
	}
	return "", false
}

// PathAllowed reports whether path satisfies name's allowed-path prefixes.
// An empty allowlist means unrestricted.
func (p *Policy) PathAllowed(name ToolName, path string) bool {
	tp, ok := p.toolPolicy(name)
	if !ok || len(tp.AllowedPaths) == 0 {
		return true
	}
	for _, prefix := range tp.AllowedPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// HostAllowed reports whether rawURL's host satisfies the http tool's
// allowed-host list.
func (p *Policy) HostAllowed(rawURL string) bool {
	tp, ok := p.toolPolicy(ToolHTTP)
	if !ok || len(tp.AllowedHosts) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, allowed := range tp.AllowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

func IsFileTool(name ToolName) bool  { return fileTools[name] }
func IsShellTool(name ToolName) bool { return shellTools[name] }
