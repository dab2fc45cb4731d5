package handlers

import (
	"context"
	"net/http"

	"github.com/castingclouds/circuit-breaker-sub002/llm"
	"github.com/castingclouds/circuit-breaker-sub002/llm/registry"
	llmrouter "github.com/castingclouds/circuit-breaker-sub002/llm/router"
	"github.com/castingclouds/circuit-breaker-sub002/llm/streaming"
	"github.com/castingclouds/circuit-breaker-sub002/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 🌊 流式会话 Handler — Streaming Fabric REST/WS surface
// =============================================================================

// StreamingHandler exposes the session-oriented streaming fabric over
// both SSE and WebSocket, resolving providers from the same Provider
// Registry the Models/Embeddings handlers use.
type StreamingHandler struct {
	fabric   *streaming.Fabric
	registry *registry.Registry
	router   *llmrouter.WeightedRouter
	ws       *streaming.WSHandler
	logger   *zap.Logger
}

// NewStreamingHandler wires a Fabric against the Provider Registry and,
// when router is non-nil, the Router — so the streaming surface
// resolves virtual model aliases and the circuit_breaker routing hint
// the same way the Chat Completions handler does. tenantFromHeader
// extracts the calling tenant id out of the WebSocket upgrade request's
// headers (however the gateway's auth middleware expresses it, e.g. a
// bearer JWT's claims) for the control protocol's auth_success/
// auth_failure handshake.
func NewStreamingHandler(fabric *streaming.Fabric, reg *registry.Registry, router *llmrouter.WeightedRouter, tenantFromHeader func(h http.Header) (string, bool), logger *zap.Logger) *StreamingHandler {
	h := &StreamingHandler{fabric: fabric, registry: reg, router: router, logger: logger}

	resolve := func(req *llm.ChatRequest) (llm.Provider, error) {
		return h.resolveProvider(req)
	}
	auth := func(_ context.Context, header http.Header) (string, bool) {
		return tenantFromHeader(header)
	}

	h.ws = streaming.NewWSHandler(fabric, resolve, auth, logger)
	return h
}

// resolveProvider resolves the provider that should serve req, rewriting
// req.Model to the concrete model id the Router (or, absent a Router,
// a plain catalog lookup) picked.
func (h *StreamingHandler) resolveProvider(req *llm.ChatRequest) (llm.Provider, error) {
	provider, modelID, err := registry.ResolveForStreaming(context.Background(), h.registry, h.router, req)
	if err != nil {
		if typedErr, ok := err.(*types.Error); ok {
			return nil, typedErr
		}
		return nil, types.NewError(types.ErrNotSupported, "no provider supports model "+req.Model)
	}
	req.Model = modelID
	return provider, nil
}

// HandleExecuteSSE 处理 POST /v1/stream — creates a new streaming
// session for the given chat request and drains it as Server-Sent
// Events on the same response.
// @Router /v1/stream [post]
func (h *StreamingHandler) HandleExecuteSSE(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req llm.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "model and messages are required"), h.logger)
		return
	}

	provider, err := h.resolveProvider(&req)
	if err != nil {
		WriteError(w, err.(*types.Error), h.logger)
		return
	}

	sessionID := uuid.NewString()
	session, err := h.fabric.Start(r.Context(), sessionID, req.TenantID, provider, &req)
	if err != nil {
		if typedErr, ok := err.(*types.Error); ok {
			WriteError(w, typedErr, h.logger)
			return
		}
		WriteError(w, types.NewError(types.ErrInternalError, "failed to start streaming session").WithCause(err), h.logger)
		return
	}

	streaming.ServeSSE(w, r, session, h.logger)
}

// HandleWebSocket 处理 GET /v1/stream/ws — upgrades to the Streaming
// Fabric's bidirectional control protocol (execute/subscribe/
// unsubscribe/ping).
// @Router /v1/stream/ws [get]
func (h *StreamingHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	accept := func() (*websocket.Conn, error) {
		return websocket.Accept(w, r, nil)
	}
	h.ws.Handle(r.Context(), accept, r.Header)
}
