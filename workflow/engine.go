package workflow

import (
	"context"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/internal/pool"
	"github.com/castingclouds/circuit-breaker-sub002/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newExecutionID() string { return uuid.NewString() }

// AgentDispatcher runs one AgentExecution. The engine enqueues
// executions onto a goroutine pool and never blocks execute_activity on
// their outcome; agent misfires are logged, never fatal to the
// transition that triggered them.
type AgentDispatcher interface {
	Dispatch(ctx context.Context, exec AgentExecution, cfg PlaceAgentConfig) error
}

// Engine runs execute_activity against a Store. AgentDispatch is
// optional; when nil, place-agent triggers are evaluated but never
// enqueued (useful for workflows with no bound agents, or in tests).
type Engine struct {
	store      Store
	resLocks   *resourceLockRegistry
	agentPool  *pool.GoroutinePool
	dispatcher AgentDispatcher
	configs    map[string][]PlaceAgentConfig // workflow_id -> place-agent bindings
	logger     *zap.Logger
}

// EngineOption configures an Engine at construction.
type EngineOption func(*Engine)

// WithAgentDispatcher wires a dispatcher and the pool it runs on.
func WithAgentDispatcher(d AgentDispatcher, p *pool.GoroutinePool) EngineOption {
	return func(e *Engine) {
		e.dispatcher = d
		e.agentPool = p
	}
}

// WithPlaceAgents binds a workflow's PlaceAgentConfig set.
func WithPlaceAgents(workflowID string, configs []PlaceAgentConfig) EngineOption {
	return func(e *Engine) {
		e.configs[workflowID] = configs
	}
}

// WithLogger overrides the no-op default logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs an Engine backed by store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		resLocks: newResourceLockRegistry(),
		configs:  make(map[string][]PlaceAgentConfig),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteActivity runs the seven-step fire procedure (§4.3): load
// resource, load workflow, locate the activity, check enablement,
// delegate the transition to storage, fan out place-agent triggers
// non-blockingly, and return the mutated resource. Per-resource calls
// are serialized by resourceLockRegistry; concurrent callers targeting
// different resources proceed in parallel.
func (e *Engine) ExecuteActivity(ctx context.Context, resourceID string, activityID ActivityId, payload map[string]interface{}) (Resource, error) {
	var result Resource
	err := e.resLocks.withResourceLock(resourceID, func() error {
		r, err := e.store.GetResource(ctx, resourceID)
		if err != nil {
			return errNotFound("resource %q not found", resourceID)
		}

		w, err := e.store.GetWorkflow(ctx, r.WorkflowID)
		if err != nil {
			return errNotFound("workflow %q not found", r.WorkflowID)
		}

		activity, ok := w.Activity(activityID)
		if !ok {
			return errActivityNotFound(activityID)
		}

		if err := e.checkEnablement(activity, r); err != nil {
			return err
		}

		updated, err := e.store.UpdateResourceState(ctx, resourceID, activityID, activity.ToState, payload)
		if err != nil {
			return errStorage(err)
		}

		e.fireTriggers(ctx, updated)
		result = updated
		return nil
	})
	return result, err
}

// checkEnablement reports whether activity is enabled for r, and if
// not, a typed error for the first failing condition (§4.3
// "Enablement"). A from-state mismatch is reported as Conflict rather
// than ActivityDisabled when r already sits on activity's own
// to_state: the per-resource lock (§4.3, S5) only serializes callers,
// it doesn't tell a losing concurrent submitter its transition has
// already been applied by the winner, so that specific mismatch is the
// race losing, not a caller asking for a transition that was never
// valid.
func (e *Engine) checkEnablement(activity Activity, r Resource) *types.Error {
	if !activity.HasFromState(r.CurrentState) {
		if r.CurrentState == activity.ToState {
			return errConflict("activity %q already applied: resource is in state %q", activity.ID, r.CurrentState)
		}
		return errActivityDisabled("resource is not in one of the activity's from_states")
	}
	res := EvaluateAll(activity.Rules, r.Document())
	if !res.Passed {
		return errActivityDisabled(res.Reason)
	}
	return nil
}

// fireTriggers enqueues one AgentExecution per PlaceAgentConfig bound
// to r's new state whose trigger rules pass, per §4.3 step 6. Enqueue
// is fire-and-forget: a pool-full rejection is logged and otherwise
// ignored, never rolling back the transition that produced r.
func (e *Engine) fireTriggers(ctx context.Context, r Resource) {
	if e.dispatcher == nil || e.agentPool == nil {
		return
	}
	for _, cfg := range e.configs[r.WorkflowID] {
		if cfg.State != r.CurrentState {
			continue
		}
		if !EvaluateAll(cfg.TriggerRules, r.Document()).Passed {
			continue
		}

		exec := AgentExecution{
			ID:                 newExecutionID(),
			AgentID:            cfg.AgentID,
			TriggeringResource: r.ID,
			TenantID:           tenantTag(r),
			Status:             AgentExecutionPending,
			Input:              r.Data,
			StartedAt:          time.Now(),
		}

		cfg := cfg
		err := e.agentPool.Submit(ctx, func(taskCtx context.Context) error {
			return e.dispatcher.Dispatch(taskCtx, exec, cfg)
		})
		if err != nil {
			e.logger.Warn("place-agent enqueue failed, transition already committed",
				zap.String("resource_id", r.ID),
				zap.String("agent_id", cfg.AgentID),
				zap.Error(err))
		}
	}
}

// tenantTag resolves an AgentExecution's tenant to the triggering
// resource's tenant metadata tag, per the project's resolution of the
// "which tenant owns an agent execution" question: a place-agent never
// straddles tenants, so it always inherits the resource that triggered
// it.
func tenantTag(r Resource) string {
	if v, ok := r.Metadata["tenant_id"].(string); ok {
		return v
	}
	return ""
}
