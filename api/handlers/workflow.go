package handlers

import (
	"net/http"
	"strings"

	"github.com/castingclouds/circuit-breaker-sub002/types"
	"github.com/castingclouds/circuit-breaker-sub002/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// 🔀 工作流接口 Handler
// =============================================================================

// WorkflowHandler 暴露 §4.10 列出的工作流路由：创建工作流、创建资源、
// 执行活动、获取资源、按状态列出资源、获取历史。路由分发基于
// http.ServeMux 的方法+路径模式（Go 1.22+），与 server.go 注册时一致。
type WorkflowHandler struct {
	store  workflow.Store
	engine *workflow.Engine
	logger *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(store workflow.Store, engine *workflow.Engine, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{store: store, engine: engine, logger: logger}
}

// createWorkflowRequest 创建工作流的请求体。
type createWorkflowRequest struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	States       []string            `json:"states"`
	InitialState string              `json:"initial_state"`
	Activities   []workflow.Activity `json:"activities"`
}

// HandleCreateWorkflow 处理 POST /v1/workflows
// @Summary 创建工作流定义
// @Tags 工作流
// @Accept json
// @Produce json
// @Router /v1/workflows [post]
func (h *WorkflowHandler) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req createWorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.ID == "" || req.Name == "" || req.InitialState == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "id, name and initial_state are required"), h.logger)
		return
	}

	def, err := h.store.CreateWorkflow(r.Context(), workflow.WorkflowDefinition{
		ID:           req.ID,
		Name:         req.Name,
		States:       req.States,
		InitialState: req.InitialState,
		Activities:   req.Activities,
	})
	if err != nil {
		h.writeStoreError(w, err, "failed to create workflow")
		return
	}

	WriteJSON(w, http.StatusCreated, def)
}

// HandleListWorkflows 处理 GET /v1/workflows
// @Router /v1/workflows [get]
func (h *WorkflowHandler) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs, err := h.store.ListWorkflows(r.Context())
	if err != nil {
		h.writeStoreError(w, err, "failed to list workflows")
		return
	}
	WriteSuccess(w, defs)
}

// createResourceRequest 创建资源的请求体。
type createResourceRequest struct {
	WorkflowID   string                 `json:"workflow_id"`
	InitialState string                 `json:"initial_state"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// HandleCreateResource 处理 POST /v1/resources
// @Router /v1/resources [post]
func (h *WorkflowHandler) HandleCreateResource(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req createResourceRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.WorkflowID == "" || req.InitialState == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "workflow_id and initial_state are required"), h.logger)
		return
	}

	res, err := h.store.CreateResource(r.Context(), req.WorkflowID, req.InitialState, req.Data, req.Metadata)
	if err != nil {
		h.writeStoreError(w, err, "failed to create resource")
		return
	}

	WriteJSON(w, http.StatusCreated, res)
}

// HandleGetResource 处理 GET /v1/resources/{id}
// @Router /v1/resources/{id} [get]
func (h *WorkflowHandler) HandleGetResource(w http.ResponseWriter, r *http.Request) {
	id := pathSuffix(r.URL.Path, "/v1/resources/")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "resource id is required"), h.logger)
		return
	}

	res, err := h.store.GetResource(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "resource not found")
		return
	}

	WriteSuccess(w, res)
}

// HandleResourcesInState 处理 GET /v1/workflows/{workflow_id}/states/{state}/resources
// @Router /v1/workflows/{workflow_id}/states/{state}/resources [get]
func (h *WorkflowHandler) HandleResourcesInState(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")
	state := r.URL.Query().Get("state")
	if workflowID == "" || state == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "workflow_id and state query parameters are required"), h.logger)
		return
	}

	resources, err := h.store.ResourcesInState(r.Context(), workflowID, state)
	if err != nil {
		h.writeStoreError(w, err, "failed to list resources")
		return
	}

	WriteSuccess(w, resources)
}

// HandleHistory 处理 GET /v1/resources/{id}/history — the resource's
// History field already carries the full ordered transition log (§4.3),
// so this is a thin projection rather than a separate read path.
func (h *WorkflowHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := pathSuffix(r.URL.Path, "/v1/resources/")
	id = strings.TrimSuffix(id, "/history")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "resource id is required"), h.logger)
		return
	}

	res, err := h.store.GetResource(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "resource not found")
		return
	}

	WriteSuccess(w, res.History)
}

// executeActivityRequest 是执行活动的请求体。
type executeActivityRequest struct {
	ResourceID string                 `json:"resource_id"`
	ActivityID string                 `json:"activity_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// HandleExecuteActivity 处理 POST /v1/activities/execute
// @Router /v1/activities/execute [post]
func (h *WorkflowHandler) HandleExecuteActivity(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req executeActivityRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.ResourceID == "" || req.ActivityID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "resource_id and activity_id are required"), h.logger)
		return
	}

	res, err := h.engine.ExecuteActivity(r.Context(), req.ResourceID, req.ActivityID, req.Payload)
	if err != nil {
		h.writeStoreError(w, err, "activity execution failed")
		return
	}

	WriteSuccess(w, res)
}

// writeStoreError maps a workflow-store error to an API error response.
// *ErrAlreadyExists is the only typed sentinel the store exposes; every
// other error surfaces as not-found/invalid rather than a 500, since
// this layer cannot distinguish storage outages from bad resource ids
// without the store returning typed errors for those cases too.
func (h *WorkflowHandler) writeStoreError(w http.ResponseWriter, err error, fallbackMsg string) {
	if _, ok := err.(*workflow.ErrAlreadyExists); ok {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()).WithHTTPStatus(http.StatusConflict), h.logger)
		return
	}
	if typedErr, ok := err.(*types.Error); ok {
		WriteError(w, typedErr, h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInvalidRequest, fallbackMsg).WithCause(err).WithHTTPStatus(http.StatusNotFound), h.logger)
}

// pathSuffix strips prefix from p and returns the remaining path
// segment, used to pull a path-parameter id out of a ServeMux pattern
// match without pulling in a router dependency.
func pathSuffix(p, prefix string) string {
	if !strings.HasPrefix(p, prefix) {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(p, prefix), "/")
}
