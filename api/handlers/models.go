package handlers

import (
	"net/http"

	"github.com/castingclouds/circuit-breaker-sub002/llm"
	"github.com/castingclouds/circuit-breaker-sub002/llm/registry"
	"go.uber.org/zap"
)

// =============================================================================
// 📚 模型目录 Handler — GET /v1/models
// =============================================================================

// ModelsResponse 是 OpenAI 兼容的模型列表响应。
type ModelsResponse struct {
	Object string      `json:"object"`
	Data   []llm.Model `json:"data"`
}

// ModelsHandler 聚合 Provider Registry 中每个已注册 Provider 的模型目录，
// 返回它们的并集（§4.10 GET /v1/models）。
type ModelsHandler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewModelsHandler 创建模型目录处理器
func NewModelsHandler(reg *registry.Registry, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{registry: reg, logger: logger}
}

// HandleList 处理 GET /v1/models
// @Summary 列出可用模型
// @Description 返回所有已注册 Provider 的模型目录并集
// @Tags 模型
// @Produce json
// @Success 200 {object} ModelsResponse
// @Router /v1/models [get]
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var out []llm.Model
	for _, cfg := range h.registry.All() {
		for _, m := range cfg.Models {
			out = append(out, llm.Model{
				ID:      m.ID,
				Object:  "model",
				OwnedBy: cfg.Code,
				Root:    m.DisplayName,
			})
		}
	}

	WriteJSON(w, http.StatusOK, ModelsResponse{
		Object: "list",
		Data:   out,
	})
}
