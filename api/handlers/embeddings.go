package handlers

import (
	"net/http"

	"github.com/castingclouds/circuit-breaker-sub002/llm"
	"github.com/castingclouds/circuit-breaker-sub002/llm/registry"
	"github.com/castingclouds/circuit-breaker-sub002/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔢 向量嵌入 Handler — POST /v1/embeddings
// =============================================================================

// EmbeddingsRequest 是 OpenAI 兼容的嵌入请求。
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingsHandler 将嵌入请求路由到第一个声明支持该模型、并实现
// llm.EmbeddingsProvider 的已注册 Provider。
type EmbeddingsHandler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewEmbeddingsHandler 创建嵌入处理器
func NewEmbeddingsHandler(reg *registry.Registry, logger *zap.Logger) *EmbeddingsHandler {
	return &EmbeddingsHandler{registry: reg, logger: logger}
}

// HandleEmbeddings 处理 POST /v1/embeddings
// @Summary 生成向量嵌入
// @Description 为给定输入生成向量嵌入
// @Tags 嵌入
// @Accept json
// @Produce json
// @Param request body EmbeddingsRequest true "嵌入请求"
// @Success 200 {object} llm.EmbeddingsResponse
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /v1/embeddings [post]
func (h *EmbeddingsHandler) HandleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req EmbeddingsRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Model == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "model is required"), h.logger)
		return
	}
	if len(req.Input) == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "input cannot be empty"), h.logger)
		return
	}

	provider := h.resolveEmbeddingsProvider(req.Model)
	if provider == nil {
		WriteError(w, types.NewError(types.ErrNotSupported, "no provider supports embeddings for model "+req.Model), h.logger)
		return
	}

	resp, err := provider.Embeddings(r.Context(), &llm.EmbeddingsRequest{
		Model: req.Model,
		Input: req.Input,
	})
	if err != nil {
		if typedErr, ok := err.(*types.Error); ok {
			WriteError(w, typedErr, h.logger)
			return
		}
		WriteError(w, types.NewError(types.ErrInternalError, "embeddings request failed").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, resp)
}

// resolveEmbeddingsProvider returns the first registered provider
// whose catalog lists model and which implements llm.EmbeddingsProvider.
func (h *EmbeddingsHandler) resolveEmbeddingsProvider(model string) llm.EmbeddingsProvider {
	for _, code := range h.registry.CodesSupportingModel(model) {
		cfg, ok := h.registry.Get(code)
		if !ok || cfg.Provider == nil {
			continue
		}
		if ep, ok := cfg.Provider.(llm.EmbeddingsProvider); ok {
			return ep
		}
	}
	return nil
}
