// Package registry implements the Provider Registry (§4.5): an
// in-memory, hot-reloadable snapshot of configured providers — kind,
// display name, base URL, credential reference, and model catalog —
// paired with the live per-provider health snapshot the Router reads on
// every request.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/llm"
	"go.uber.org/zap"
)

// ProviderConfig is one entry in the registry: everything the Router
// and the Provider Client layer need to know about a configured
// provider, independent of any one in-flight request.
type ProviderConfig struct {
	Code              string            `json:"code" yaml:"code"`
	Kind              string            `json:"kind" yaml:"kind"` // e.g. "openai", "anthropic", "ollama", "vllm"
	DisplayName       string            `json:"display_name" yaml:"display_name"`
	BaseURL           string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	CredentialRef     string            `json:"credential_ref,omitempty" yaml:"credential_ref,omitempty"`
	Models            []llm.ModelEntry  `json:"models" yaml:"models"`
	Tags              map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority          int               `json:"priority,omitempty" yaml:"priority,omitempty"`
	Provider          llm.Provider      `json:"-" yaml:"-"`
}

// snapshot is the immutable value swapped in atomically on reload —
// the registry never mutates a snapshot that's already published.
type snapshot struct {
	byCode       map[string]ProviderConfig
	order        []string // insertion order, for deterministic iteration
	generatedAt  time.Time
}

// Registry holds the current snapshot plus the live health side-table.
// Reload swaps the snapshot pointer atomically; readers never block
// writers and never observe a half-updated provider set.
type Registry struct {
	current atomic.Pointer[snapshot]
	health  *llm.HealthRegistry
	logger  *zap.Logger

	mu        sync.Mutex // serializes Reload calls
	listeners []func(old, new []ProviderConfig)
}

// New returns a Registry seeded with an empty provider set.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{health: llm.NewHealthRegistry(), logger: logger}
	r.current.Store(&snapshot{byCode: map[string]ProviderConfig{}, generatedAt: time.Now()})
	return r
}

// Health exposes the registry's shared health side-table so the Router
// and any health-check loop read/write the same state.
func (r *Registry) Health() *llm.HealthRegistry { return r.health }

// OnReload registers a callback fired after Reload publishes a new
// snapshot, receiving the previous and new provider lists. Intended for
// components (e.g. a hot-reloadable health-check ticker) that need to
// add/remove per-provider goroutines when the set changes.
func (r *Registry) OnReload(fn func(old, new []ProviderConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload atomically replaces the provider set. Existing in-flight
// reads of the prior snapshot are unaffected; the next Get/All call
// sees the new set.
func (r *Registry) Reload(configs []ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := &snapshot{
		byCode:      make(map[string]ProviderConfig, len(configs)),
		order:       make([]string, 0, len(configs)),
		generatedAt: time.Now(),
	}
	for _, c := range configs {
		next.byCode[c.Code] = c
		next.order = append(next.order, c.Code)
	}

	old := r.current.Swap(next)
	r.logger.Info("provider registry reloaded", zap.Int("provider_count", len(configs)))

	if len(r.listeners) > 0 {
		oldList := snapshotToList(old)
		newList := snapshotToList(next)
		for _, fn := range r.listeners {
			fn(oldList, newList)
		}
	}
}

func snapshotToList(s *snapshot) []ProviderConfig {
	if s == nil {
		return nil
	}
	out := make([]ProviderConfig, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, s.byCode[code])
	}
	return out
}

// Get returns the provider config for code and whether it exists.
func (r *Registry) Get(code string) (ProviderConfig, bool) {
	s := r.current.Load()
	c, ok := s.byCode[code]
	return c, ok
}

// All returns every configured provider in registration order.
func (r *Registry) All() []ProviderConfig {
	return snapshotToList(r.current.Load())
}

// CodesSupportingModel returns the codes of every registered provider
// whose catalog lists modelName, in registration order.
func (r *Registry) CodesSupportingModel(modelName string) []string {
	s := r.current.Load()
	var out []string
	for _, code := range s.order {
		for _, m := range s.byCode[code].Models {
			if m.ID == modelName {
				out = append(out, code)
				break
			}
		}
	}
	return out
}

// ModelEntry looks up the catalog entry for (providerCode, modelName).
func (r *Registry) ModelEntry(providerCode, modelName string) (llm.ModelEntry, bool) {
	s := r.current.Load()
	c, ok := s.byCode[providerCode]
	if !ok {
		return llm.ModelEntry{}, false
	}
	for _, m := range c.Models {
		if m.ID == modelName {
			return m, true
		}
	}
	return llm.ModelEntry{}, false
}
