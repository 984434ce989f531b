// Package providers is the seam where a concrete LLM backend is plugged
// in. The rest of the module only ever sees agentcore.StreamProvider; this
// package is the registry cmd/conductor consults to resolve the
// config-named provider to a concrete implementation, without the command
// itself knowing any provider-specific details.
package providers

import (
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/config"
)

// Factory builds a StreamProvider from the agent config block.
type Factory func(cfg config.AgentConfig) (agentcore.StreamProvider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds a named provider factory. Intended to be called from an
// init() in a build-specific file that imports the actual SDK client this
// module does not depend on.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// New resolves cfg.Provider to a concrete StreamProvider.
func New(cfg config.AgentConfig) (agentcore.StreamProvider, error) {
	mu.RLock()
	factory, ok := factories[cfg.Provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (register one via providers.Register in a build-specific file)", cfg.Provider)
	}
	return factory(cfg)
}
