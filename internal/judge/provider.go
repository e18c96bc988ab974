package judge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stellarlinkco/agent-eval/internal/config"
)

// Provider is a judge model: given a prepared grading prompt it returns the
// model's raw text reply.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Registry stores judge providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	if r == nil {
		panic("judge: register on nil registry")
	}
	if p == nil {
		panic("judge: register nil provider")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		panic("judge: provider has empty name")
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[name] = p
}

// Get returns a named provider if present.
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil || r.providers == nil {
		return nil, false
	}
	p, ok := r.providers[strings.TrimSpace(name)]
	return p, ok
}

// NewRegistryFromConfig builds providers for every configured judge backend.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("judge: nil config")
	}

	r := NewRegistry()
	for name, pcfg := range cfg.Judge.Providers {
		key := strings.ToLower(strings.TrimSpace(name))
		switch key {
		case "":
			continue
		case "claude", "anthropic":
			r.Register(NewClaudeProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model))
		case "openai":
			r.Register(NewOpenAIProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model))
		default:
			return nil, fmt.Errorf("judge: unknown provider %q", name)
		}
	}
	return r, nil
}

// DefaultProviderFromConfig returns the configured default judge provider,
// wrapped with the configured retry policy.
func DefaultProviderFromConfig(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("judge: nil config")
	}
	reg, err := NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(cfg.Judge.DefaultProvider)
	if name == "" {
		name = "claude"
	}
	if p, ok := reg.Get(name); ok {
		return WithRetry(p, cfg.Judge.MaxRetries, cfg.Judge.RetryDelay), nil
	}

	available := make([]string, 0, len(reg.providers))
	for k := range reg.providers {
		available = append(available, k)
	}
	sort.Strings(available)
	return nil, fmt.Errorf("judge: default provider %q not configured (available: %s)", name, strings.Join(available, ", "))
}
