package registry

import (
	"context"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/llm"
	llmrouter "github.com/castingclouds/circuit-breaker-sub002/llm/router"
	"github.com/castingclouds/circuit-breaker-sub002/types"
)

// RoutingProvider adapts a Registry into a single llm.Provider. When a
// *llmrouter.WeightedRouter is wired in, it resolves the backing
// provider through the Router's Select/Invoke (§4.8) — honoring
// virtual model aliases (cb:fastest, cb:cost-optimal, auto) and the
// `circuit_breaker` request extension's routing strategy, cost ceiling,
// and fallback model list. Without a router it falls back to a plain
// catalog lookup by concrete model id, so callers that only have a
// Registry (tests, e.g.) still get a working Provider.
type RoutingProvider struct {
	reg    *Registry
	router *llmrouter.WeightedRouter
}

// NewRoutingProvider returns a Provider that dispatches every call
// through reg and, when router is non-nil, through the Router's
// selection/failover logic.
func NewRoutingProvider(reg *Registry, router *llmrouter.WeightedRouter) *RoutingProvider {
	return &RoutingProvider{reg: reg, router: router}
}

// routeRequest translates a ChatRequest's model and circuit_breaker
// hint into the Router's RouteRequest shape.
func routeRequest(req *llm.ChatRequest) *llmrouter.RouteRequest {
	rr := &llmrouter.RouteRequest{
		TenantID:    req.TenantID,
		Tags:        req.Tags,
		PreferModel: req.Model,
	}
	if hint := req.CircuitBreaker; hint != nil {
		if hint.TaskType != "" {
			rr.TaskType = hint.TaskType
		}
		if hint.CostCeiling > 0 {
			rr.MaxCost = hint.CostCeiling
		}
		if hint.RoutingStrategy != "" {
			rr.Strategy = llmrouter.Strategy(hint.RoutingStrategy)
		}
	}
	return rr
}

// fallbackModelList builds the ordered candidate list for a
// circuit_breaker.fallback_models hint: the request's own model first
// (skipped when it's a virtual alias, since an alias isn't itself a
// model_specific candidate), then the hint's fallback list verbatim.
func fallbackModelList(primary string, fallbacks []string) []string {
	var out []string
	if primary != "" {
		if _, isAlias := llmrouter.ResolveAlias(primary); !isAlias {
			out = append(out, primary)
		}
	}
	return append(out, fallbacks...)
}

func (p *RoutingProvider) resolve(model string) (llm.Provider, error) {
	codes := p.reg.CodesSupportingModel(model)
	if len(codes) == 0 {
		return nil, types.NewError(types.ErrModelNotFound, "no provider supports model "+model)
	}
	cfg, ok := p.reg.Get(codes[0])
	if !ok || cfg.Provider == nil {
		return nil, types.NewError(types.ErrModelNotFound, "no provider supports model "+model)
	}
	return cfg.Provider, nil
}

// selectProvider resolves the provider and concrete model id that
// should serve req, honoring virtual aliases and the circuit_breaker
// routing hint through the Router when one is wired; it falls back to
// a plain catalog lookup (no alias/hint support, but still correct for
// a request that already names a concrete model) when the Router has
// no candidate for req, or none is wired at all.
func (p *RoutingProvider) selectProvider(ctx context.Context, req *llm.ChatRequest) (llm.Provider, string, error) {
	if p.router == nil {
		provider, err := p.resolve(req.Model)
		return provider, req.Model, err
	}

	if hint := req.CircuitBreaker; hint != nil && len(hint.FallbackModels) > 0 {
		models := fallbackModelList(req.Model, hint.FallbackModels)
		result, provider, err := p.router.SelectFallback(models)
		if err == nil {
			return provider, result.ModelID, nil
		}
		return nil, "", types.NewError(types.ErrModelNotFound, "no provider supports requested model or its fallbacks")
	}

	if result, err := p.router.Select(ctx, routeRequest(req)); err == nil {
		if provider, ok := p.router.ProviderFor(result.ProviderCode); ok && provider != nil {
			return provider, result.ModelID, nil
		}
	}

	provider, err := p.resolve(req.Model)
	if err != nil {
		return nil, "", types.NewError(types.ErrModelNotFound, "no provider supports model "+req.Model)
	}
	return provider, req.Model, nil
}

// ResolveForStreaming exposes the same alias/fallback/hint-aware
// provider resolution RoutingProvider.Stream uses, for callers (the
// Streaming Fabric's SSE/WebSocket handlers) that need the resolved
// provider and concrete model id directly rather than a
// llm.Provider-shaped adapter.
func ResolveForStreaming(ctx context.Context, reg *Registry, router *llmrouter.WeightedRouter, req *llm.ChatRequest) (llm.Provider, string, error) {
	p := &RoutingProvider{reg: reg, router: router}
	return p.selectProvider(ctx, req)
}

// Completion dispatches req through the Router (selection + retry +
// failover across its fallback model list, if any) when wired,
// otherwise through a plain catalog lookup.
func (p *RoutingProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.router != nil {
		if hint := req.CircuitBreaker; hint != nil && len(hint.FallbackModels) > 0 {
			models := fallbackModelList(req.Model, hint.FallbackModels)
			resp, _, err := p.router.InvokeModels(ctx, models, req)
			if err == nil {
				return resp, nil
			}
			if provider, rerr := p.resolve(req.Model); rerr == nil {
				return provider.Completion(ctx, req)
			}
			return nil, err
		}

		resp, _, err := p.router.Invoke(ctx, routeRequest(req), req)
		if err == nil {
			return resp, nil
		}
		// The router has no usable candidate (e.g. nothing loaded into
		// it yet) — fall back to a direct catalog lookup so a request
		// naming a concrete, registered model still succeeds.
		if provider, rerr := p.resolve(req.Model); rerr == nil {
			return provider.Completion(ctx, req)
		}
		return nil, err
	}

	provider, err := p.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return provider.Completion(ctx, req)
}

// Stream resolves the provider backing req (router-aware, see
// selectProvider) and dispatches to it. Unlike Completion, a streaming
// call can't be transparently retried once bytes have reached the
// client, so only the initial selection benefits from failover; a
// mid-stream provider error surfaces to the caller as a stream chunk
// error instead of silently switching providers.
func (p *RoutingProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	provider, modelID, err := p.selectProvider(ctx, req)
	if err != nil {
		return nil, err
	}
	req.Model = modelID
	return provider.Stream(ctx, req)
}

// HealthCheck reports healthy when at least one registered provider is
// itself healthy; it has no single model to check against.
func (p *RoutingProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	for _, cfg := range p.reg.All() {
		if cfg.Provider == nil {
			continue
		}
		if status, err := cfg.Provider.HealthCheck(ctx); err == nil && status.Healthy {
			return &llm.HealthStatus{Healthy: true, Latency: time.Since(start)}, nil
		}
	}
	return &llm.HealthStatus{Healthy: false, Latency: time.Since(start)}, nil
}

// Name identifies this adapter rather than any one backing provider.
func (p *RoutingProvider) Name() string { return "registry-routed" }

// SupportsNativeFunctionCalling can't be answered without a model to
// resolve against, so this conservatively reports false; callers that
// need the real answer should resolve a concrete provider first.
func (p *RoutingProvider) SupportsNativeFunctionCalling() bool { return false }

// ListModels aggregates every registered provider's catalog.
func (p *RoutingProvider) ListModels(ctx context.Context) ([]llm.Model, error) {
	var out []llm.Model
	for _, cfg := range p.reg.All() {
		if cfg.Provider == nil {
			continue
		}
		models, err := cfg.Provider.ListModels(ctx)
		if err != nil {
			continue
		}
		out = append(out, models...)
	}
	return out, nil
}
