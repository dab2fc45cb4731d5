// Package vllm implements the Provider Client contract (§4.6) for a
// self-hosted vLLM OpenAI-compatible server. Like ollama, it needs no
// bespoke wire translation, so this configures the shared openaicompat
// base rather than duplicating its request/response/stream handling.
package vllm

import (
	"github.com/castingclouds/circuit-breaker-sub002/llm/providers"
	"github.com/castingclouds/circuit-breaker-sub002/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// VLLMProvider 实现 vLLM LLM 提供者 (自托管, OpenAI 兼容).
type VLLMProvider struct {
	*openaicompat.Provider
}

// NewVLLMProvider 创建新的 vLLM 提供者实例.
func NewVLLMProvider(cfg providers.VLLMConfig, logger *zap.Logger) *VLLMProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	defaultModel := cfg.Model
	if cfg.ServedModelName != "" {
		defaultModel = cfg.ServedModelName
	}

	return &VLLMProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:       "vllm",
			APIKey:             cfg.APIKey,
			BaseURL:            cfg.BaseURL,
			DefaultModel:       defaultModel,
			Timeout:            cfg.Timeout,
			EndpointPath:       "/v1/chat/completions",
			ModelsEndpoint:     "/v1/models",
			EmbeddingsEndpoint: "/v1/embeddings",
			SupportsEmbeddings: true,
		}, logger),
	}
}
