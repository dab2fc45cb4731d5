// Package main provides the AgentFlow server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/agent"
	"github.com/castingclouds/circuit-breaker-sub002/agent/discovery"
	"github.com/castingclouds/circuit-breaker-sub002/api/handlers"
	"github.com/castingclouds/circuit-breaker-sub002/config"
	"github.com/castingclouds/circuit-breaker-sub002/eventlog"
	"github.com/castingclouds/circuit-breaker-sub002/internal/metrics"
	"github.com/castingclouds/circuit-breaker-sub002/internal/pool"
	"github.com/castingclouds/circuit-breaker-sub002/internal/server"
	"github.com/castingclouds/circuit-breaker-sub002/internal/telemetry"
	"github.com/castingclouds/circuit-breaker-sub002/llm"
	"github.com/castingclouds/circuit-breaker-sub002/llm/factory"
	llmconfig "github.com/castingclouds/circuit-breaker-sub002/llm/config"
	"github.com/castingclouds/circuit-breaker-sub002/llm/registry"
	llmrouter "github.com/castingclouds/circuit-breaker-sub002/llm/router"
	"github.com/castingclouds/circuit-breaker-sub002/llm/streaming"
	"github.com/castingclouds/circuit-breaker-sub002/storage"
	"github.com/castingclouds/circuit-breaker-sub002/workflow"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🖥️ Server 结构（重构版）
// =============================================================================

// Server 是 AgentFlow 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers
	db         *gorm.DB

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// LLM 网关组件
	llmRegistry *registry.Registry
	llmRouter   *llmrouter.WeightedRouter
	healthCheck *llmrouter.HealthChecker

	// Workflow 组件
	workflowStore  workflow.Store
	workflowEngine *workflow.Engine
	agentPool      *pool.GoroutinePool
	eventLog       eventlog.Log

	// 流式会话组件
	streamingFabric *streaming.Fabric

	// Handlers
	healthHandler     *handlers.HealthHandler
	chatHandler       *handlers.ChatHandler
	modelsHandler     *handlers.ModelsHandler
	embeddingsHandler *handlers.EmbeddingsHandler
	workflowHandler   *handlers.WorkflowHandler
	streamingHandler  *handlers.StreamingHandler
	agentHandler      *handlers.AgentHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 热更新管理器
	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otelProviders,
		db:         db,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("agentflow", s.logger)

	// 2. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 3. 初始化热更新管理器
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 6. 启动 Provider 健康检查循环
	if s.healthCheck != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.healthCheck.Start(context.Background())
		}()
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
		zap.Int("provider_count", len(s.llmRegistry.All())),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 初始化所有 handlers：先搭建 Provider Registry 与 Router，
// 再在其上构建 Chat/Models/Embeddings/Streaming/Workflow handlers。
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.db != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("postgres", func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}))
	}

	if err := s.initProviderRegistry(); err != nil {
		return fmt.Errorf("init provider registry: %w", err)
	}
	s.healthHandler.RegisterCheck(handlers.NewProviderRegistryHealthCheck(s.llmRegistry.Health()))

	if err := s.initWorkflowStore(); err != nil {
		return fmt.Errorf("init workflow store: %w", err)
	}

	s.streamingFabric = streaming.NewFabric(s.streamingFabricConfig(), s.logger)

	routedProvider := registry.NewRoutingProvider(s.llmRegistry, s.llmRouter)
	s.chatHandler = handlers.NewChatHandler(routedProvider, s.logger)
	s.modelsHandler = handlers.NewModelsHandler(s.llmRegistry, s.logger)
	s.embeddingsHandler = handlers.NewEmbeddingsHandler(s.llmRegistry, s.logger)
	s.streamingHandler = handlers.NewStreamingHandler(s.streamingFabric, s.llmRegistry, s.llmRouter, s.tenantFromHeader, s.logger)

	// Agent discovery/execution surface: a CapabilityRegistry tracks live
	// agent instances for listing/health, AgentRegistry holds the
	// buildable agent types, and LocalStore ties the two together with
	// the Provider Registry/Router (via routedProvider) as every locally
	// built agent's llm.Provider — so an agent_id referenced either by a
	// direct /v1/agents/execute call or by a workflow place-agent binding
	// resolves to the same live instance.
	discoveryRegistry := discovery.NewCapabilityRegistry(nil, s.logger)
	agentTypeRegistry := agent.NewAgentRegistry(s.logger)
	agentContainer := agent.NewContainer().WithProvider(routedProvider).WithLogger(s.logger)
	localAgents := agent.NewLocalStore(agentContainer, agentTypeRegistry, s.logger)
	s.agentHandler = handlers.NewAgentHandler(discoveryRegistry, agentTypeRegistry, s.logger, localAgents.Resolve)

	s.agentPool = pool.NewGoroutinePool(pool.DefaultGoroutinePoolConfig())
	agentDispatcher := workflow.NewLiveAgentDispatcher(localAgents.Resolve, nil, s.logger)
	s.workflowEngine = workflow.NewEngine(s.workflowStore, workflow.WithAgentDispatcher(agentDispatcher, s.agentPool), workflow.WithLogger(s.logger))
	s.workflowHandler = handlers.NewWorkflowHandler(s.workflowStore, s.workflowEngine, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

// initProviderRegistry 将配置中的 Provider 列表构造为 llm/registry.Registry
// 的一份快照，并据此初始化加权 Router（候选模型与健康探活）。
func (s *Server) initProviderRegistry() error {
	s.llmRegistry = registry.New(s.logger)

	entries := s.cfg.LLM.Providers
	configs := make([]registry.ProviderConfig, 0, len(entries))
	providersByCode := make(map[string]llm.Provider, len(entries))

	for _, entry := range entries {
		provider, err := factory.NewProviderFromConfig(entry.Kind, factory.ProviderConfig{
			APIKey:  entry.APIKey,
			BaseURL: entry.BaseURL,
			Model:   entry.Model,
			Timeout: s.cfg.LLM.Timeout,
		}, s.logger)
		if err != nil {
			s.logger.Warn("skipping provider that failed to initialize",
				zap.String("code", entry.Code), zap.String("kind", entry.Kind), zap.Error(err))
			continue
		}

		configs = append(configs, registry.ProviderConfig{
			Code:        entry.Code,
			Kind:        entry.Kind,
			DisplayName: entry.DisplayName,
			BaseURL:     entry.BaseURL,
			Priority:    entry.Priority,
			Models: []llm.ModelEntry{{
				ID:                entry.Model,
				DisplayName:       entry.Model,
				SupportsStreaming: true,
			}},
			Provider: provider,
		})
		providersByCode[entry.Code] = provider
	}

	if len(configs) == 0 {
		s.logger.Warn("no LLM providers configured; chat/models/embeddings endpoints will return errors until llm.providers is populated")
	}
	s.llmRegistry.Reload(configs)

	s.llmRouter = llmrouter.NewWeightedRouter(s.logger, nil)
	s.llmRouter.LoadCandidates(buildRouterCandidates(s.llmRegistry))
	s.llmRouter.SetProviders(providersByCode)

	if len(providersByCode) > 0 {
		s.healthCheck = llmrouter.NewHealthCheckerWithProviders(s.llmRouter, providersByCode, 30*time.Second, 5*time.Second, s.logger)
	}
	return nil
}

// buildRouterCandidates 把 Registry 当前快照翻译成加权 Router 自己的
// llm/config.LLMConfig 视图 —— 两者是历史上独立演化出来的配置形状
// （Registry 面向热加载的 Provider 目录，Router 的 LLMConfig 面向权重/
// 降级策略），这里只做一次性的只读转换，不引入第三个配置来源。
func buildRouterCandidates(reg *registry.Registry) *llmconfig.LLMConfig {
	providers := make(map[string]llmconfig.ProviderConfig)
	for _, pc := range reg.All() {
		models := make([]llmconfig.ModelConfig, 0, len(pc.Models))
		for _, m := range pc.Models {
			models = append(models, llmconfig.ModelConfig{
				ID:          m.ID,
				Name:        m.DisplayName,
				MaxTokens:   m.MaxOutputTokens,
				PriceInput:  m.InputCostPerToken,
				PriceOutput: m.OutputCostPerToken,
				Tags:        m.CapabilityTags,
				Enabled:     true,
			})
		}
		providers[pc.Code] = llmconfig.ProviderConfig{
			Code:    pc.Code,
			Name:    pc.DisplayName,
			BaseURL: pc.BaseURL,
			Enabled: true,
			Models:  models,
		}
	}
	return &llmconfig.LLMConfig{
		Providers:      providers,
		RoutingWeights: map[string][]llmconfig.RoutingWeight{},
	}
}

// initWorkflowStore 需要一个数据库连接和一份事件日志；Redis 可用时事件日志
// 落在 Redis Stream 上（与 Provider 健康检查共享同一个 Redis 实例的思路一
// 致），否则退回到仅进程内有效的 MemoryLog。
func (s *Server) initWorkflowStore() error {
	if s.db == nil {
		return fmt.Errorf("workflow store requires a database connection")
	}

	if s.cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		})
		s.eventLog = eventlog.NewRedisLog(client, "agentflow:workflow")
	} else {
		s.eventLog = eventlog.NewMemoryLog()
	}

	store, err := storage.NewGormStore(s.db, s.eventLog, s.logger)
	if err != nil {
		return err
	}
	s.workflowStore = store
	return nil
}

func (s *Server) streamingFabricConfig() streaming.FabricConfig {
	cfg := streaming.DefaultFabricConfig()
	if s.cfg.Streaming.MaxSessions > 0 {
		cfg.MaxSessions = s.cfg.Streaming.MaxSessions
	}
	if s.cfg.Streaming.IdleTimeout > 0 {
		cfg.IdleTimeout = s.cfg.Streaming.IdleTimeout
	}
	if s.cfg.Streaming.SessionBufferSize > 0 {
		cfg.Session.BufferSize = s.cfg.Streaming.SessionBufferSize
	}
	cfg.Session.MaxRatePerSec = s.cfg.Streaming.MaxRatePerSec
	cfg.Session.BurstSize = s.cfg.Streaming.BurstSize
	return cfg
}

// tenantFromHeader extracts the tenant id out of a WebSocket upgrade
// request's Authorization: Bearer header, mirroring JWTAuth's HS256 path
// without pulling the full middleware chain into the streaming package.
func (s *Server) tenantFromHeader(h http.Header) (string, bool) {
	if !s.cfg.Server.JWT.Enabled {
		return "anonymous", true
	}

	authHeader := h.Get("Authorization")
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return "", false
	}
	tokenStr := authHeader[len(prefix):]

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return []byte(s.cfg.Server.JWT.Secret), nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	tenantID, ok := claims["tenant_id"].(string)
	if !ok || tenantID == "" {
		return "", false
	}
	return tenantID, true
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	// 注册配置变更回调
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	// 注册配置重载回调
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	// 启动热更新管理器
	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	// 创建配置 API 处理器
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器（使用新的 handlers）
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// Gateway API 路由
	// ========================================
	mux.HandleFunc("/v1/chat/completions", s.chatHandler.HandleCompletion)
	mux.HandleFunc("/v1/chat/completions/stream", s.chatHandler.HandleStream)
	mux.HandleFunc("/v1/models", s.modelsHandler.HandleList)
	mux.HandleFunc("/v1/embeddings", s.embeddingsHandler.HandleEmbeddings)
	mux.HandleFunc("/v1/stream", s.streamingHandler.HandleExecuteSSE)
	mux.HandleFunc("/v1/stream/ws", s.streamingHandler.HandleWebSocket)

	mux.HandleFunc("/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.workflowHandler.HandleCreateWorkflow(w, r)
		default:
			s.workflowHandler.HandleListWorkflows(w, r)
		}
	})
	mux.HandleFunc("/v1/resources", s.workflowHandler.HandleCreateResource)
	mux.HandleFunc("/v1/resources/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/history") {
			s.workflowHandler.HandleHistory(w, r)
			return
		}
		s.workflowHandler.HandleGetResource(w, r)
	})
	mux.HandleFunc("/v1/resources/in-state", s.workflowHandler.HandleResourcesInState)
	mux.HandleFunc("/v1/activities/execute", s.workflowHandler.HandleExecuteActivity)

	mux.HandleFunc("/v1/agents", s.agentHandler.HandleListAgents)
	mux.HandleFunc("/v1/agents/execute", s.agentHandler.HandleExecuteAgent)
	mux.HandleFunc("/v1/agents/execute/stream", s.agentHandler.HandleAgentStream)
	mux.HandleFunc("/v1/agents/plan", s.agentHandler.HandlePlanAgent)
	mux.HandleFunc("/v1/agents/health", s.agentHandler.HandleAgentHealth)
	mux.HandleFunc("/v1/agents/", s.agentHandler.HandleGetAgent)

	// ========================================
	// 配置管理 API
	// ========================================
	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("Configuration API registered")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	middlewareCtx := context.Background()
	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(middlewareCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, false, s.logger),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                        // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止热更新管理器
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	// 2. 停止 Provider 健康检查
	if s.healthCheck != nil {
		s.healthCheck.Stop()
	}

	// 3. 停止流式会话清扫器
	if s.streamingFabric != nil {
		s.streamingFabric.Stop()
	}

	// 3b. 停止 place-agent 派发池
	if s.agentPool != nil {
		s.agentPool.Close()
	}

	// 4. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 6. 关闭事件日志
	if s.eventLog != nil {
		if err := s.eventLog.Close(); err != nil {
			s.logger.Error("Event log shutdown error", zap.Error(err))
		}
	}

	// 7. 关闭 OTel Providers
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 8. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
