package provider

import (
	"quorum/internal/config"
	"quorum/internal/logging"
	"quorum/internal/types"
)

// Resolver decides which providers to try for a call. The priority list is
// injected at construction, not read ambiently, so callers can reorder or
// restrict it per consultation.
type Resolver struct {
	priority []string
	cfg      *config.ProvidersConfig
}

// NewResolver creates a resolver with the given priority order.
func NewResolver(priority []string, cfg *config.ProvidersConfig) *Resolver {
	if len(priority) == 0 {
		priority = []string{ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderGateway}
	}
	return &Resolver{priority: priority, cfg: cfg}
}

// Order returns the fallback chain for a call: the requested provider first
// if it is usable, then every other usable provider in priority order. When
// requested is empty the chain is just the usable priority list. Returns a
// ProviderUnavailableError when nothing is usable.
func (r *Resolver) Order(requested string) ([]string, error) {
	var chain []string
	var checked []string

	if requested != "" {
		checked = append(checked, requested)
		if HasCredential(requested, r.cfg) {
			chain = append(chain, requested)
		} else {
			logging.ProviderWarn("requested provider %q has no credential, falling back", requested)
		}
	}

	for _, name := range r.priority {
		if name == requested {
			continue
		}
		checked = append(checked, name)
		if HasCredential(name, r.cfg) {
			chain = append(chain, name)
		}
	}

	if len(chain) == 0 {
		return nil, &types.ProviderUnavailableError{Requested: requested, Checked: checked}
	}
	return chain, nil
}

// Primary returns the first usable provider, resolving fallback eagerly.
func (r *Resolver) Primary(requested string) (string, error) {
	chain, err := r.Order(requested)
	if err != nil {
		return "", err
	}
	return chain[0], nil
}

// Priority returns a copy of the injected priority order.
func (r *Resolver) Priority() []string {
	out := make([]string, len(r.priority))
	copy(out, r.priority)
	return out
}
