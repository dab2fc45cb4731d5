package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/castingclouds/circuit-breaker-sub002/types"
	"go.uber.org/zap"
)

// LocalStore is the in-process counterpart to discovery.Registry: it
// holds Config for agents this gateway runs locally (as opposed to
// discovered/remote agents reached over the A2A protocol) and
// instantiates them through a Container + AgentRegistry factory,
// caching the live instance after first use. It's the concrete type
// behind the AgentResolver seam api/handlers.AgentHandler and
// workflow.LiveAgentDispatcher both consume, so a place-agent trigger
// and a direct /v1/agents/execute call resolve the exact same agent
// instance for a given id.
type LocalStore struct {
	mu        sync.RWMutex
	container *Container
	registry  *AgentRegistry
	configs   map[string]Config
	live      map[string]Agent
	logger    *zap.Logger
}

// NewLocalStore builds a store that instantiates agents through
// container (its provider/memory/tool-manager/bus/logger) using
// registry's per-type factories.
func NewLocalStore(container *Container, registry *AgentRegistry, logger *zap.Logger) *LocalStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{
		container: container,
		registry:  registry,
		configs:   make(map[string]Config),
		live:      make(map[string]Agent),
		logger:    logger,
	}
}

// Register binds an agent id to the Config it should be built from.
// Calling Register again for an id already instantiated evicts the
// cached instance so the next Resolve rebuilds it from the new Config.
func (s *LocalStore) Register(cfg Config) {
	if cfg.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
	delete(s.live, cfg.ID)
}

// Resolve returns the live agent bound to id, building and caching it
// on first use. Matches the AgentResolver shape both AgentHandler and
// LiveAgentDispatcher expect.
func (s *LocalStore) Resolve(ctx context.Context, id string) (Agent, error) {
	s.mu.RLock()
	if a, ok := s.live[id]; ok {
		s.mu.RUnlock()
		return a, nil
	}
	cfg, ok := s.configs[id]
	s.mu.RUnlock()
	if !ok {
		if s.container.Provider() == nil {
			return nil, types.NewNotFoundError(fmt.Sprintf("agent %q is not registered", id))
		}
		// No explicit Config was Register()ed for id — fall back to a
		// generic agent built from the default model, the same way a
		// place-agent binding that only names an agent_id (no separate
		// agent-catalog entry) is expected to just work. An operator can
		// still override with an explicit Register call for a specific
		// model/prompt/tool set.
		cfg = Config{ID: id, Name: id, Type: TypeGeneric}
	}

	a, err := s.registry.Create(cfg, s.container.Provider(), s.container.Memory(), s.container.ToolManager(), s.container.EventBus(), s.container.Logger())
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", id, err)
	}
	if err := a.Init(ctx); err != nil {
		return nil, fmt.Errorf("agent %q: init: %w", id, err)
	}

	s.mu.Lock()
	s.live[id] = a
	s.mu.Unlock()

	s.logger.Info("instantiated local agent", zap.String("agent_id", id), zap.String("type", string(cfg.Type)))
	return a, nil
}

// List reports the ids of every registered (not necessarily yet
// instantiated) agent.
func (s *LocalStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	return ids
}
