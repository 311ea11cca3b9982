package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/studioloop/maestro/core"
)

// Registry holds the named agents available to conversations and produces
// the tool declarations advertised to language models. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent under its name. Registering a second agent with the
// same name is an error; names route model tool calls and must be unique.
func (r *Registry) Register(a Agent) error {
	if a == nil || a.Name() == "" {
		return fmt.Errorf("register agent: missing name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("register agent: %q already registered", a.Name())
	}
	r.agents[a.Name()] = a

	return nil
}

// MustRegister registers an agent and panics on conflict. Intended for
// static wiring at startup.
func (r *Registry) MustRegister(a Agent) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Get returns the agent registered under name, or nil when unknown.
func (r *Registry) Get(name string) Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.agents[name]
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Specs returns tool declarations for the named agents, preserving the
// requested order and skipping unknown names. With no names it returns
// declarations for every registered agent in sorted name order.
func (r *Registry) Specs(names ...string) []core.ToolSpec {
	if len(names) == 0 {
		names = r.Names()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]core.ToolSpec, 0, len(names))
	for _, name := range names {
		a, ok := r.agents[name]
		if !ok {
			continue
		}
		specs = append(specs, core.ToolSpec{
			Name:        a.Name(),
			Description: a.Description(),
			Parameters:  a.Parameters(),
		})
	}

	return specs
}
