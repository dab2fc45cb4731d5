// Package mongostore is an optional storage.Store backend for
// deployments that prefer a document store for the schemaless
// Resource.Data/Metadata payloads over a relational one. Selected via
// storage.backend: mongo.
//
// Unlike GormStore, there is no cross-collection transaction available
// between the resource document and a separately-stored history log, so
// UpdateResourceState uses optimistic concurrency: each resource
// document carries a monotonically increasing version field, and the
// update is a single FindOneAndUpdate filtered on (id, version) — a
// mismatch means another writer won the race, and this store reports it
// as a Conflict rather than blocking, per §4.3's documented fallback for
// backends without row-level locking.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/workflow"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	workflowsCollection = "workflow_definitions"
	resourcesCollection = "workflow_resources"
	rulesCollection     = "workflow_rules"
)

// resourceDoc is the on-disk shape of a workflow.Resource plus the
// optimistic-concurrency version this package adds on top of it.
type resourceDoc struct {
	workflow.Resource `bson:",inline"`
	Version           int64 `bson:"version"`
}

// Store implements workflow.Store against a MongoDB database.
type Store struct {
	db *mongo.Database
}

// New wraps an already-connected *mongo.Client scoped to dbName.
func New(client *mongo.Client, dbName string) *Store {
	return &Store{db: client.Database(dbName)}
}

func (s *Store) workflows() *mongo.Collection { return s.db.Collection(workflowsCollection) }
func (s *Store) resources() *mongo.Collection { return s.db.Collection(resourcesCollection) }
func (s *Store) rules() *mongo.Collection     { return s.db.Collection(rulesCollection) }

func (s *Store) CreateWorkflow(ctx context.Context, def workflow.WorkflowDefinition) (workflow.WorkflowDefinition, error) {
	if err := def.Validate(); err != nil {
		return workflow.WorkflowDefinition{}, err
	}
	now := time.Now()
	def.CreatedAt, def.UpdatedAt = now, now
	_, err := s.workflows().InsertOne(ctx, def)
	if mongo.IsDuplicateKeyError(err) {
		return workflow.WorkflowDefinition{}, &workflow.ErrAlreadyExists{ID: def.ID}
	}
	if err != nil {
		return workflow.WorkflowDefinition{}, fmt.Errorf("mongostore: create workflow %q: %w", def.ID, err)
	}
	return def, nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (workflow.WorkflowDefinition, error) {
	var w workflow.WorkflowDefinition
	err := s.workflows().FindOne(ctx, bson.M{"id": id}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return workflow.WorkflowDefinition{}, fmt.Errorf("mongostore: workflow %q not found", id)
	}
	if err != nil {
		return workflow.WorkflowDefinition{}, fmt.Errorf("mongostore: get workflow %q: %w", id, err)
	}
	return w, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]workflow.WorkflowDefinition, error) {
	cur, err := s.workflows().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list workflows: %w", err)
	}
	defer cur.Close(ctx)

	var out []workflow.WorkflowDefinition
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode workflows: %w", err)
	}
	return out, nil
}

func (s *Store) CreateResource(ctx context.Context, workflowID string, initialState string, data, metadata map[string]interface{}) (workflow.Resource, error) {
	w, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return workflow.Resource{}, err
	}
	state := initialState
	if state == "" {
		state = w.InitialState
	}
	if !w.HasState(state) {
		return workflow.Resource{}, fmt.Errorf("mongostore: state %q is not a member of workflow %q", state, workflowID)
	}

	now := time.Now()
	r := workflow.Resource{
		ID:           uuid.NewString(),
		WorkflowID:   workflowID,
		CurrentState: state,
		Data:         data,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	doc := resourceDoc{Resource: r, Version: 1}
	if _, err := s.resources().InsertOne(ctx, doc); err != nil {
		return workflow.Resource{}, fmt.Errorf("mongostore: create resource: %w", err)
	}
	return r, nil
}

func (s *Store) GetResource(ctx context.Context, id string) (workflow.Resource, error) {
	var doc resourceDoc
	err := s.resources().FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return workflow.Resource{}, fmt.Errorf("mongostore: resource %q not found", id)
	}
	if err != nil {
		return workflow.Resource{}, fmt.Errorf("mongostore: get resource %q: %w", id, err)
	}
	return doc.Resource, nil
}

func (s *Store) FindResource(ctx context.Context, workflowID, id string) (workflow.Resource, error) {
	var doc resourceDoc
	err := s.resources().FindOne(ctx, bson.M{"id": id, "workflow_id": workflowID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return workflow.Resource{}, fmt.Errorf("mongostore: resource %q not found in workflow %q", id, workflowID)
	}
	if err != nil {
		return workflow.Resource{}, fmt.Errorf("mongostore: find resource %q: %w", id, err)
	}
	return doc.Resource, nil
}

func (s *Store) ResourcesInState(ctx context.Context, workflowID, stateID string) ([]workflow.Resource, error) {
	cur, err := s.resources().Find(ctx, bson.M{"workflow_id": workflowID, "current_state": stateID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: resources in state %s/%s: %w", workflowID, stateID, err)
	}
	defer cur.Close(ctx)

	var docs []resourceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode resources: %w", err)
	}
	out := make([]workflow.Resource, len(docs))
	for i, d := range docs {
		out[i] = d.Resource
	}
	return out, nil
}

// UpdateResourceState retries the optimistic FindOneAndUpdate once on a
// version mismatch (the most common cause is a benign race against a
// reader that hasn't reloaded yet) before surfacing Conflict to the
// caller.
func (s *Store) UpdateResourceState(ctx context.Context, resourceID string, activity workflow.ActivityId, newState string, payload map[string]interface{}) (workflow.Resource, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var current resourceDoc
		if err := s.resources().FindOne(ctx, bson.M{"id": resourceID}).Decode(&current); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return workflow.Resource{}, fmt.Errorf("mongostore: resource %q not found", resourceID)
			}
			return workflow.Resource{}, fmt.Errorf("mongostore: load resource %q: %w", resourceID, err)
		}

		now := time.Now()
		oldState := current.CurrentState
		history := append(current.History, workflow.HistoryEvent{
			Timestamp: now,
			Activity:  activity,
			From:      oldState,
			To:        newState,
			Payload:   payload,
		})
		coords := workflow.LogCoordinates{
			Subject:   fmt.Sprintf("workflows.%s.states.%s.resources.%s", current.WorkflowID, newState, current.ID),
			Sequence:  uint64(len(history)),
			Timestamp: now,
		}

		filter := bson.M{"id": resourceID, "version": current.Version}
		update := bson.M{"$set": bson.M{
			"current_state": newState,
			"history":       history,
			"log_coords":    coords,
			"updated_at":    now,
			"version":       current.Version + 1,
		}}

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var updated resourceDoc
		err := s.resources().FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			lastErr = fmt.Errorf("mongostore: conflicting update to resource %q", resourceID)
			continue
		}
		if err != nil {
			return workflow.Resource{}, fmt.Errorf("mongostore: update resource %q: %w", resourceID, err)
		}
		return updated.Resource, nil
	}
	return workflow.Resource{}, lastErr
}

func (s *Store) CreateRule(ctx context.Context, rule workflow.NamedRule) (workflow.NamedRule, error) {
	if _, err := s.rules().InsertOne(ctx, rule); err != nil {
		return workflow.NamedRule{}, fmt.Errorf("mongostore: create rule %q: %w", rule.ID, err)
	}
	return rule, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (workflow.NamedRule, error) {
	var r workflow.NamedRule
	err := s.rules().FindOne(ctx, bson.M{"id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return workflow.NamedRule{}, fmt.Errorf("mongostore: rule %q not found", id)
	}
	if err != nil {
		return workflow.NamedRule{}, fmt.Errorf("mongostore: get rule %q: %w", id, err)
	}
	return r, nil
}

func (s *Store) ListRules(ctx context.Context) ([]workflow.NamedRule, error) {
	cur, err := s.rules().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list rules: %w", err)
	}
	defer cur.Close(ctx)

	var out []workflow.NamedRule
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode rules: %w", err)
	}
	return out, nil
}

func (s *Store) PurgeWorkflow(ctx context.Context, workflowID string) error {
	if _, err := s.resources().DeleteMany(ctx, bson.M{"workflow_id": workflowID}); err != nil {
		return fmt.Errorf("mongostore: purge workflow %q: %w", workflowID, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }
