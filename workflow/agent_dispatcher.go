package workflow

import (
	"context"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/agent"
	"go.uber.org/zap"
)

// AgentResolver resolves an agent id to a live agent.Agent instance.
// This is the same seam api/handlers.AgentHandler's own AgentResolver
// uses for /v1/agents/execute, so a place-agent trigger and a directly
// invoked agent are resolved identically regardless of which surface
// asked for them.
type AgentResolver func(ctx context.Context, agentID string) (agent.Agent, error)

// ExecutionRecorder persists the outcome of a dispatched AgentExecution.
// Kept separate from Store (rather than adding AgentExecution CRUD to
// it directly) so a workflow store that has no use for execution
// history — in-memory tests, e.g. — isn't forced to implement it;
// LiveAgentDispatcher works with recorder == nil, it just won't have
// an execution history to show.
type ExecutionRecorder interface {
	RecordAgentExecution(ctx context.Context, exec AgentExecution) error
}

// LiveAgentDispatcher is the production AgentDispatcher (§4.3 step 6):
// it resolves cfg.AgentID through an AgentResolver, maps the
// triggering resource's data through cfg's path maps, runs the agent
// via NativeAgentAdapter, and records the outcome. A resolver failure
// or agent error is recorded as AgentExecutionFailed and logged — per
// fireTriggers' contract, it never propagates back to the transition
// that enqueued it.
type LiveAgentDispatcher struct {
	resolver AgentResolver
	recorder ExecutionRecorder // optional
	logger   *zap.Logger
}

// NewLiveAgentDispatcher builds a dispatcher bound to resolver. recorder
// may be nil when execution history isn't needed.
func NewLiveAgentDispatcher(resolver AgentResolver, recorder ExecutionRecorder, logger *zap.Logger) *LiveAgentDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveAgentDispatcher{resolver: resolver, recorder: recorder, logger: logger}
}

// Dispatch implements AgentDispatcher.
func (d *LiveAgentDispatcher) Dispatch(ctx context.Context, exec AgentExecution, cfg PlaceAgentConfig) error {
	exec.Status = AgentExecutionRunning

	ag, err := d.resolver(ctx, cfg.AgentID)
	if err != nil {
		return d.fail(ctx, exec, cfg, err)
	}

	adapter := NewNativeAgentAdapter(ag)
	input := buildAgentInput(exec, cfg)

	start := time.Now()
	raw, err := adapter.Execute(ctx, input)
	exec.Duration = time.Since(start)
	ended := time.Now()
	exec.EndedAt = &ended

	if err != nil {
		return d.fail(ctx, exec, cfg, err)
	}

	exec.Status = AgentExecutionCompleted
	exec.Output = mapAgentOutput(raw, cfg.OutputPathMap)

	d.logger.Info("place-agent execution completed",
		zap.String("execution_id", exec.ID),
		zap.String("agent_id", cfg.AgentID),
		zap.String("resource_id", exec.TriggeringResource),
		zap.Duration("duration", exec.Duration))

	return d.record(ctx, exec)
}

func (d *LiveAgentDispatcher) fail(ctx context.Context, exec AgentExecution, cfg PlaceAgentConfig, cause error) error {
	exec.Status = AgentExecutionFailed
	exec.Error = cause.Error()
	if exec.EndedAt == nil {
		ended := time.Now()
		exec.EndedAt = &ended
	}

	d.logger.Warn("place-agent execution failed",
		zap.String("execution_id", exec.ID),
		zap.String("agent_id", cfg.AgentID),
		zap.String("resource_id", exec.TriggeringResource),
		zap.Error(cause))

	return d.record(ctx, exec)
}

func (d *LiveAgentDispatcher) record(ctx context.Context, exec AgentExecution) error {
	if d.recorder == nil {
		return nil
	}
	if err := d.recorder.RecordAgentExecution(ctx, exec); err != nil {
		d.logger.Warn("failed to persist agent execution record",
			zap.String("execution_id", exec.ID), zap.Error(err))
		return err
	}
	return nil
}

// buildAgentInput maps a triggering resource's document through cfg's
// InputPathMap into an *agent.Input: each entry is a dotted path into
// the resource's data, looked up with extractPath, and placed under
// its map key in Input.Context. ParameterOverride values are layered
// on top so a static config value always wins over the resource's own
// data for the same key. With no InputPathMap, the whole resource
// document is passed through as Context unchanged.
func buildAgentInput(exec AgentExecution, cfg PlaceAgentConfig) *agent.Input {
	vars := make(map[string]any, len(cfg.InputPathMap)+len(cfg.ParameterOverride))
	for k, v := range exec.Input {
		vars[k] = v
	}
	for key, path := range cfg.InputPathMap {
		if v, ok := extractPath(exec.Input, path); ok {
			vars[key] = v
		}
	}
	for k, v := range cfg.ParameterOverride {
		vars[k] = v
	}

	return &agent.Input{
		TraceID:   exec.ID,
		TenantID:  exec.TenantID,
		Content:   stringifyContent(vars),
		Context:   vars,
		Variables: nil,
	}
}

// mapAgentOutput projects an agent's Output through cfg's
// OutputPathMap, re-keying whichever of Metadata/Content the map names
// into the AgentExecution.Output document the resource's
// OutputPathMap-driven update (if any) consumes downstream. With no
// OutputPathMap the full Output is flattened as-is.
func mapAgentOutput(out *agent.Output, outputPathMap map[string]string) map[string]interface{} {
	if out == nil {
		return nil
	}
	full := map[string]interface{}{
		"content":       out.Content,
		"tokens_used":   out.TokensUsed,
		"cost":          out.Cost,
		"finish_reason": out.FinishReason,
	}
	for k, v := range out.Metadata {
		full[k] = v
	}
	if len(outputPathMap) == 0 {
		return full
	}

	mapped := make(map[string]interface{}, len(outputPathMap))
	for destKey, srcPath := range outputPathMap {
		if v, ok := extractPath(full, srcPath); ok {
			mapped[destKey] = v
		}
	}
	return mapped
}

// extractPath looks up a dot-separated path (e.g. "metadata.score")
// inside a nested map[string]interface{} document, descending one
// level per segment.
func extractPath(doc map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	cur := interface{}(doc)
	for _, seg := range splitPath(path) {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// stringifyContent renders a place-agent's resolved variables as a
// compact prompt body when the agent implementation expects plain
// Content rather than structured Context; agents that only look at
// Context (the common case for BaseAgent-derived types with a
// UserPromptTemplate) can ignore it.
func stringifyContent(vars map[string]any) string {
	if v, ok := vars["content"].(string); ok {
		return v
	}
	if v, ok := vars["query"].(string); ok {
		return v
	}
	return ""
}
