// Package storage implements the Storage Layer (§4.2): durable CRUD for
// workflows, resources, and named rules, with a read path optimized for
// "all resources currently in state S of workflow W" and log
// coordinates stamped on every write. The contract these
// implementations satisfy, workflow.Store, is declared in the workflow
// package so the engine never imports this package.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/workflow"
	"github.com/google/uuid"
)

// MemoryStore is a process-local Store implementation: workflows,
// resources, and rules live in guarded maps; the current-state index is
// maintained alongside the resource map under the same lock so
// ResourcesInState never observes a half-migrated resource.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]workflow.WorkflowDefinition
	resources  map[string]workflow.Resource
	rules      map[string]workflow.NamedRule
	stateIndex map[string]map[string]struct{} // workflow_id\x00state -> resource ids
	resLocks   map[string]*sync.Mutex         // per-resource striped lock for Concurrency discipline
	locksMu    sync.Mutex
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]workflow.WorkflowDefinition),
		resources:  make(map[string]workflow.Resource),
		rules:      make(map[string]workflow.NamedRule),
		stateIndex: make(map[string]map[string]struct{}),
		resLocks:   make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) resourceLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.resLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.resLocks[id] = l
	}
	return l
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, def workflow.WorkflowDefinition) (workflow.WorkflowDefinition, error) {
	if err := def.Validate(); err != nil {
		return workflow.WorkflowDefinition{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[def.ID]; exists {
		return workflow.WorkflowDefinition{}, &workflow.ErrAlreadyExists{ID: def.ID}
	}
	now := time.Now()
	def.CreatedAt, def.UpdatedAt = now, now
	s.workflows[def.ID] = def
	return def, nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (workflow.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return workflow.WorkflowDefinition{}, fmt.Errorf("storage: workflow %q not found", id)
	}
	return w, nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context) ([]workflow.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.WorkflowDefinition, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w)
	}
	return out, nil
}

func (s *MemoryStore) CreateResource(_ context.Context, workflowID string, initialState string, data, metadata map[string]interface{}) (workflow.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[workflowID]
	if !ok {
		return workflow.Resource{}, fmt.Errorf("storage: workflow %q not found", workflowID)
	}
	state := initialState
	if state == "" {
		state = w.InitialState
	}
	if !w.HasState(state) {
		return workflow.Resource{}, fmt.Errorf("storage: state %q is not a member of workflow %q", state, workflowID)
	}

	now := time.Now()
	r := workflow.Resource{
		ID:           uuid.NewString(),
		WorkflowID:   workflowID,
		CurrentState: state,
		Data:         data,
		Metadata:     metadata,
		History:      nil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.resources[r.ID] = r
	s.indexInsert(r)
	return r, nil
}

func (s *MemoryStore) GetResource(_ context.Context, id string) (workflow.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return workflow.Resource{}, fmt.Errorf("storage: resource %q not found", id)
	}
	return r, nil
}

func (s *MemoryStore) FindResource(ctx context.Context, workflowID, id string) (workflow.Resource, error) {
	r, err := s.GetResource(ctx, id)
	if err != nil {
		return workflow.Resource{}, err
	}
	if r.WorkflowID != workflowID {
		return workflow.Resource{}, fmt.Errorf("storage: resource %q not found in workflow %q", id, workflowID)
	}
	return r, nil
}

func (s *MemoryStore) ResourcesInState(_ context.Context, workflowID, stateID string) ([]workflow.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := workflowID + "\x00" + stateID
	ids := s.stateIndex[key]
	out := make([]workflow.Resource, 0, len(ids))
	for id := range ids {
		out = append(out, s.resources[id])
	}
	return out, nil
}

// UpdateResourceState serializes per resource id via a striped lock
// (Concurrency discipline, §4.3), then appends the transition and
// migrates the state index atomically under the store-wide lock.
func (s *MemoryStore) UpdateResourceState(_ context.Context, resourceID string, activity workflow.ActivityId, newState string, payload map[string]interface{}) (workflow.Resource, error) {
	lock := s.resourceLock(resourceID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[resourceID]
	if !ok {
		return workflow.Resource{}, fmt.Errorf("storage: resource %q not found", resourceID)
	}

	oldState := r.CurrentState
	now := time.Now()
	r.History = append(r.History, workflow.HistoryEvent{
		Timestamp: now,
		Activity:  activity,
		From:      oldState,
		To:        newState,
		Payload:   payload,
	})
	r.CurrentState = newState
	r.UpdatedAt = now
	r.LogCoords = workflow.LogCoordinates{
		Subject:   fmt.Sprintf("workflows.%s.states.%s.resources.%s", r.WorkflowID, newState, r.ID),
		Sequence:  uint64(len(r.History)),
		Timestamp: now,
	}

	s.indexRemove(oldState, r.WorkflowID, r.ID)
	s.resources[r.ID] = r
	s.indexInsert(r)

	return r, nil
}

func (s *MemoryStore) indexInsert(r workflow.Resource) {
	key := r.WorkflowID + "\x00" + r.CurrentState
	if s.stateIndex[key] == nil {
		s.stateIndex[key] = make(map[string]struct{})
	}
	s.stateIndex[key][r.ID] = struct{}{}
}

func (s *MemoryStore) indexRemove(oldState, workflowID, resourceID string) {
	key := workflowID + "\x00" + oldState
	delete(s.stateIndex[key], resourceID)
}

func (s *MemoryStore) CreateRule(_ context.Context, rule workflow.NamedRule) (workflow.NamedRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *MemoryStore) GetRule(_ context.Context, id string) (workflow.NamedRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return workflow.NamedRule{}, fmt.Errorf("storage: rule %q not found", id)
	}
	return r, nil
}

func (s *MemoryStore) ListRules(_ context.Context) ([]workflow.NamedRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.NamedRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) PurgeWorkflow(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.resources {
		if r.WorkflowID == workflowID {
			delete(s.resources, id)
		}
	}
	for key := range s.stateIndex {
		if len(key) >= len(workflowID) && key[:len(workflowID)] == workflowID {
			delete(s.stateIndex, key)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
