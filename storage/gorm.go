package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/eventlog"
	"github.com/castingclouds/circuit-breaker-sub002/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transitionPayload is the wire shape appended to the event log on
// every resource state transition.
type transitionPayload struct {
	Activity workflow.ActivityId    `json:"activity"`
	From     string                 `json:"from"`
	To       string                 `json:"to"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
}

func encodeTransitionPayload(activity workflow.ActivityId, from, to string, payload map[string]interface{}) ([]byte, error) {
	return json.Marshal(transitionPayload{Activity: activity, From: from, To: to, Payload: payload})
}

// GormStore is the production storage.backend=log implementation:
// workflows, resources, and rules are the authoritative, queryable
// rows a GORM-backed SQL database holds (so ResourcesInState is a plain
// indexed WHERE, not a log scan); every UpdateResourceState call also
// appends the transition to an eventlog.Log subject for durable replay
// and audit, per §4.2's "log coordinates on every write" requirement.
// Cross-process serialization per resource id comes from a row-level
// SELECT ... FOR UPDATE inside the update transaction.
type GormStore struct {
	db     *gorm.DB
	log    eventlog.Log
	logger *zap.Logger
}

// NewGormStore opens (migrating if necessary) a GORM-backed store
// paired with an event log for durable history.
func NewGormStore(db *gorm.DB, log eventlog.Log, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&workflow.WorkflowDefinition{}, &workflow.Resource{}, &workflow.NamedRule{}); err != nil {
		return nil, fmt.Errorf("storage: automigrate: %w", err)
	}
	return &GormStore{db: db, log: log, logger: logger}, nil
}

func (s *GormStore) CreateWorkflow(ctx context.Context, def workflow.WorkflowDefinition) (workflow.WorkflowDefinition, error) {
	if err := def.Validate(); err != nil {
		return workflow.WorkflowDefinition{}, err
	}
	err := s.db.WithContext(ctx).Create(&def).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return workflow.WorkflowDefinition{}, &workflow.ErrAlreadyExists{ID: def.ID}
		}
		return workflow.WorkflowDefinition{}, fmt.Errorf("storage: create workflow %q: %w", def.ID, err)
	}
	return def, nil
}

func (s *GormStore) GetWorkflow(ctx context.Context, id string) (workflow.WorkflowDefinition, error) {
	var w workflow.WorkflowDefinition
	err := s.db.WithContext(ctx).First(&w, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.WorkflowDefinition{}, fmt.Errorf("storage: workflow %q not found", id)
	}
	if err != nil {
		return workflow.WorkflowDefinition{}, fmt.Errorf("storage: get workflow %q: %w", id, err)
	}
	return w, nil
}

func (s *GormStore) ListWorkflows(ctx context.Context) ([]workflow.WorkflowDefinition, error) {
	var out []workflow.WorkflowDefinition
	if err := s.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("storage: list workflows: %w", err)
	}
	return out, nil
}

func (s *GormStore) CreateResource(ctx context.Context, workflowID string, initialState string, data, metadata map[string]interface{}) (workflow.Resource, error) {
	w, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return workflow.Resource{}, err
	}
	state := initialState
	if state == "" {
		state = w.InitialState
	}
	if !w.HasState(state) {
		return workflow.Resource{}, fmt.Errorf("storage: state %q is not a member of workflow %q", state, workflowID)
	}

	r := workflow.Resource{
		ID:           uuid.NewString(),
		WorkflowID:   workflowID,
		CurrentState: state,
		Data:         data,
		Metadata:     metadata,
	}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return workflow.Resource{}, fmt.Errorf("storage: create resource: %w", err)
	}
	return r, nil
}

func (s *GormStore) GetResource(ctx context.Context, id string) (workflow.Resource, error) {
	var r workflow.Resource
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.Resource{}, fmt.Errorf("storage: resource %q not found", id)
	}
	if err != nil {
		return workflow.Resource{}, fmt.Errorf("storage: get resource %q: %w", id, err)
	}
	return r, nil
}

func (s *GormStore) FindResource(ctx context.Context, workflowID, id string) (workflow.Resource, error) {
	var r workflow.Resource
	err := s.db.WithContext(ctx).First(&r, "id = ? AND workflow_id = ?", id, workflowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.Resource{}, fmt.Errorf("storage: resource %q not found in workflow %q", id, workflowID)
	}
	if err != nil {
		return workflow.Resource{}, fmt.Errorf("storage: find resource %q: %w", id, err)
	}
	return r, nil
}

func (s *GormStore) ResourcesInState(ctx context.Context, workflowID, stateID string) ([]workflow.Resource, error) {
	var out []workflow.Resource
	err := s.db.WithContext(ctx).
		Where("workflow_id = ? AND current_state = ?", workflowID, stateID).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("storage: resources in state %s/%s: %w", workflowID, stateID, err)
	}
	return out, nil
}

// UpdateResourceState runs inside a transaction that takes a row lock
// on the resource, so a second concurrent caller for the same id
// blocks here rather than racing the update (the database plays the
// role resourceLockRegistry plays for the in-memory backend).
func (s *GormStore) UpdateResourceState(ctx context.Context, resourceID string, activity workflow.ActivityId, newState string, payload map[string]interface{}) (workflow.Resource, error) {
	var result workflow.Resource
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r workflow.Resource
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "id = ?", resourceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("storage: resource %q not found", resourceID)
			}
			return err
		}

		oldState := r.CurrentState
		now := time.Now()
		subject := fmt.Sprintf("workflows.%s.states.%s.resources.%s", r.WorkflowID, newState, r.ID)

		var seq uint64
		if s.log != nil {
			body, _ := encodeTransitionPayload(activity, oldState, newState, payload)
			msg, err := s.log.Append(ctx, subject, body)
			if err != nil {
				return fmt.Errorf("append history: %w", err)
			}
			seq = msg.Sequence
		} else {
			seq = uint64(len(r.History)) + 1
		}

		r.History = append(r.History, workflow.HistoryEvent{
			Timestamp: now,
			Activity:  activity,
			From:      oldState,
			To:        newState,
			Payload:   payload,
		})
		r.CurrentState = newState
		r.UpdatedAt = now
		r.LogCoords = workflow.LogCoordinates{Subject: subject, Sequence: seq, Timestamp: now}

		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return workflow.Resource{}, fmt.Errorf("storage: update resource state for %q: %w", resourceID, err)
	}
	return result, nil
}

func (s *GormStore) CreateRule(ctx context.Context, rule workflow.NamedRule) (workflow.NamedRule, error) {
	if err := s.db.WithContext(ctx).Create(&rule).Error; err != nil {
		return workflow.NamedRule{}, fmt.Errorf("storage: create rule %q: %w", rule.ID, err)
	}
	return rule, nil
}

func (s *GormStore) GetRule(ctx context.Context, id string) (workflow.NamedRule, error) {
	var r workflow.NamedRule
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.NamedRule{}, fmt.Errorf("storage: rule %q not found", id)
	}
	if err != nil {
		return workflow.NamedRule{}, fmt.Errorf("storage: get rule %q: %w", id, err)
	}
	return r, nil
}

func (s *GormStore) ListRules(ctx context.Context) ([]workflow.NamedRule, error) {
	var out []workflow.NamedRule
	if err := s.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("storage: list rules: %w", err)
	}
	return out, nil
}

func (s *GormStore) PurgeWorkflow(ctx context.Context, workflowID string) error {
	if err := s.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Delete(&workflow.Resource{}).Error; err != nil {
		return fmt.Errorf("storage: purge workflow %q: %w", workflowID, err)
	}
	if s.log != nil {
		if err := s.log.Purge(ctx, fmt.Sprintf("workflows.%s.", workflowID)); err != nil {
			s.logger.Warn("event log purge failed after resource rows were deleted",
				zap.String("workflow_id", workflowID), zap.Error(err))
		}
	}
	return nil
}

func (s *GormStore) Close() error {
	if s.log != nil {
		return s.log.Close()
	}
	return nil
}
