// Package ollama implements the Provider Client contract (§4.6) for a
// self-hosted Ollama server. Ollama's /v1/ endpoints are OpenAI-compatible
// for chat completion and embeddings, so this is a thin configuration of
// the shared openaicompat base — the same pattern the teacher already
// uses for DeepSeek, Qwen, GLM, Grok, Doubao, and MiniMax.
package ollama

import (
	"github.com/castingclouds/circuit-breaker-sub002/llm/providers"
	"github.com/castingclouds/circuit-breaker-sub002/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// OllamaProvider 实现 Ollama LLM 提供者.
// Ollama 原生暴露 OpenAI 兼容的 /v1/chat/completions 与 /v1/embeddings 端点.
type OllamaProvider struct {
	*openaicompat.Provider
}

// NewOllamaProvider 创建新的 Ollama 提供者实例.
func NewOllamaProvider(cfg providers.OllamaConfig, logger *zap.Logger) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:       "ollama",
			APIKey:             cfg.APIKey, // ollama ignores this unless a reverse proxy enforces auth
			BaseURL:            cfg.BaseURL,
			DefaultModel:       cfg.Model,
			FallbackModel:      "llama3",
			Timeout:            cfg.Timeout,
			EndpointPath:       "/v1/chat/completions",
			ModelsEndpoint:     "/v1/models",
			EmbeddingsEndpoint: "/v1/embeddings",
			SupportsEmbeddings: true,
		}, logger),
	}
}
