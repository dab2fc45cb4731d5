package workflow

import (
	"context"
	"fmt"
)

// NamedRule is a reusable, independently stored Rule, addressable by id
// from the `rules.<rule_id>` event-log subject family.
type NamedRule struct {
	ID   string `gorm:"primaryKey;size:100" json:"id" bson:"id"`
	Rule Rule   `gorm:"serializer:json" json:"rule" bson:"rule"`
}

func (NamedRule) TableName() string { return "sc_workflow_rules" }

// ErrAlreadyExists is returned by CreateWorkflow when def.ID is already
// present.
type ErrAlreadyExists struct{ ID string }

func (e *ErrAlreadyExists) Error() string { return fmt.Sprintf("storage: %q already exists", e.ID) }

// Store is the Storage Layer contract (§4.2) the Engine depends on. It
// is declared here, on the consumer side, so concrete backends
// (in-memory, GORM+eventlog, MongoDB) live in their own package without
// the engine importing it — only satisfying it structurally.
//
// Implementations: in-memory (tests, storage.backend=memory), GORM +
// eventlog (production default, storage.backend=log), and an optional
// MongoDB document-store backend (storage.backend=mongo).
type Store interface {
	CreateWorkflow(ctx context.Context, def WorkflowDefinition) (WorkflowDefinition, error)
	GetWorkflow(ctx context.Context, id string) (WorkflowDefinition, error)
	ListWorkflows(ctx context.Context) ([]WorkflowDefinition, error)

	CreateResource(ctx context.Context, workflowID string, initialState string, data, metadata map[string]interface{}) (Resource, error)
	GetResource(ctx context.Context, id string) (Resource, error)
	FindResource(ctx context.Context, workflowID, id string) (Resource, error)
	ResourcesInState(ctx context.Context, workflowID, stateID string) ([]Resource, error)

	// UpdateResourceState appends a transition record on the resource's
	// subject and atomically updates the state index with respect to
	// concurrent ResourcesInState reads before returning the mutated
	// Resource with refreshed log coordinates.
	UpdateResourceState(ctx context.Context, resourceID string, activity ActivityId, newState string, payload map[string]interface{}) (Resource, error)

	CreateRule(ctx context.Context, rule NamedRule) (NamedRule, error)
	GetRule(ctx context.Context, id string) (NamedRule, error)
	ListRules(ctx context.Context) ([]NamedRule, error)

	// PurgeWorkflow clears every resource of workflowID from the
	// current-state index and its event-log subjects (B5); subsequent
	// reads return empty sets without error.
	PurgeWorkflow(ctx context.Context, workflowID string) error

	Close() error
}
