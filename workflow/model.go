package workflow

import (
	"encoding/json"
	"time"
)

// StateId and ActivityId are opaque, domain-defined identifiers. The
// engine never interprets their contents; equality is string-exact.
type StateId = string
type ActivityId = string

// WorkflowDefinition is immutable once persisted: a name, its set of
// states, a designated initial state, and its activities.
type WorkflowDefinition struct {
	ID           string     `gorm:"primaryKey;size:100" json:"id" bson:"id"`
	Name         string     `gorm:"size:200;not null" json:"name" bson:"name"`
	States       []string   `gorm:"serializer:json" json:"states" bson:"states"`
	InitialState StateId    `gorm:"size:100" json:"initial_state" bson:"initial_state"`
	Activities   []Activity `gorm:"serializer:json" json:"activities" bson:"activities"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at"`
}

func (WorkflowDefinition) TableName() string { return "sc_workflow_definitions" }

// Activity declares a single named transition rule: one or more input
// states, exactly one output state, and an ordered list of guard rules.
type Activity struct {
	ID         ActivityId `json:"id" bson:"id"`
	FromStates []StateId  `json:"from_states" bson:"from_states"`
	ToState    StateId    `json:"to_state" bson:"to_state"`
	Rules      []Rule     `json:"rules,omitempty" bson:"rules,omitempty"`
}

// HasFromState reports whether s is one of this activity's input states.
func (a Activity) HasFromState(s StateId) bool {
	for _, fs := range a.FromStates {
		if fs == s {
			return true
		}
	}
	return false
}

// HasState reports whether s is a member of the workflow's state set.
func (w WorkflowDefinition) HasState(s StateId) bool {
	for _, st := range w.States {
		if st == s {
			return true
		}
	}
	return false
}

// Activity looks up an activity by id, returning (Activity{}, false) if absent.
func (w WorkflowDefinition) Activity(id ActivityId) (Activity, bool) {
	for _, a := range w.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}

// Validate checks the §3 WorkflowDefinition invariant: every from_state and
// to_state named by an activity must be a member of the state set, and the
// initial state must be too.
func (w WorkflowDefinition) Validate() error {
	if w.ID == "" {
		return errValidation("workflow id must not be empty")
	}
	if len(w.States) == 0 {
		return errValidation("workflow must declare at least one state")
	}
	if !w.HasState(w.InitialState) {
		return errValidation("initial state %q is not a member of the state set", w.InitialState)
	}
	for _, a := range w.Activities {
		if len(a.FromStates) == 0 {
			return errValidation("activity %q declares no from_states", a.ID)
		}
		for _, fs := range a.FromStates {
			if !w.HasState(fs) {
				return errValidation("activity %q from_state %q is not a member of the state set", a.ID, fs)
			}
		}
		if !w.HasState(a.ToState) {
			return errValidation("activity %q to_state %q is not a member of the state set", a.ID, a.ToState)
		}
	}
	return nil
}

// LogCoordinates are set by the storage layer on write: the event-log
// subject, the assigned sequence number, and the log-assigned timestamp.
type LogCoordinates struct {
	Subject   string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Sequence  uint64    `json:"sequence,omitempty" bson:"sequence,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

// Resource is one instance of an executing workflow.
type Resource struct {
	ID           string                 `gorm:"primaryKey;size:100" json:"id" bson:"id"`
	WorkflowID   string                 `gorm:"size:100;not null;index" json:"workflow_id" bson:"workflow_id"`
	CurrentState StateId                `gorm:"size:100;not null;index:idx_workflow_state" json:"current_state" bson:"current_state"`
	Data         map[string]interface{} `gorm:"serializer:json" json:"data" bson:"data"`
	Metadata     map[string]interface{} `gorm:"serializer:json" json:"metadata" bson:"metadata"`
	History      []HistoryEvent         `gorm:"serializer:json" json:"history" bson:"history"`
	LogCoords    LogCoordinates         `gorm:"embedded;embeddedPrefix:log_" json:"log_coordinates,omitempty" bson:"log_coords,omitempty"`
	CreatedAt    time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at" bson:"updated_at"`
}

func (Resource) TableName() string { return "sc_workflow_resources" }

// IndexKey identifies the (workflow_id, state) bucket this resource
// belongs to for the resources_in_state query.
func (r Resource) IndexKey() string { return r.WorkflowID + "\x00" + r.CurrentState }

// Document marshals data+metadata into the JSON document rule evaluation
// runs against: {"data": ..., "metadata": ...}, so rule paths are written
// as "data.foo" / "metadata.bar".
func (r Resource) Document() []byte {
	doc, _ := json.Marshal(struct {
		Data     map[string]interface{} `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}{Data: r.Data, Metadata: r.Metadata})
	return doc
}

// HistoryEvent is an immutable, append-only transition record.
type HistoryEvent struct {
	Timestamp time.Time              `json:"timestamp" bson:"timestamp"`
	Activity  ActivityId             `json:"activity" bson:"activity"`
	From      StateId                `json:"from" bson:"from"`
	To        StateId                `json:"to" bson:"to"`
	Payload   map[string]interface{} `json:"payload,omitempty" bson:"payload,omitempty"`
}

// AgentDefinition names the LLM call a place-agent makes.
type AgentDefinition struct {
	ID                 string            `json:"id"`
	ProviderSelector   string            `json:"provider_selector"`
	Model              string            `json:"model"`
	Temperature        float32           `json:"temperature,omitempty"`
	MaxTokens          int               `json:"max_tokens,omitempty"`
	TopP               float32           `json:"top_p,omitempty"`
	FrequencyPenalty   float32           `json:"frequency_penalty,omitempty"`
	PresencePenalty    float32           `json:"presence_penalty,omitempty"`
	Stop               []string          `json:"stop,omitempty"`
	SystemPrompt       string            `json:"system_prompt,omitempty"`
	UserPromptTemplate string            `json:"user_prompt_template"`
	InputPathMap       map[string]string `json:"input_path_map,omitempty"`
	OutputPathMap      map[string]string `json:"output_path_map,omitempty"`
}

// AgentSchedule governs automatic re-firing of a place-agent.
type AgentSchedule struct {
	InitialDelay  time.Duration `json:"initial_delay,omitempty"`
	Interval      time.Duration `json:"interval,omitempty"`
	MaxExecutions int           `json:"max_executions,omitempty"`
}

// AgentRetryPolicy governs retrying a failed place-agent execution.
type AgentRetryPolicy struct {
	MaxAttempts    int      `json:"max_attempts"`
	BackoffSeconds int      `json:"backoff_seconds"`
	RetryOnError   []string `json:"retry_on_error,omitempty"`
}

// PlaceAgentConfig binds an AgentDefinition to a state: whenever a
// resource transitions into State and the trigger rules pass, an
// AgentExecution is enqueued.
type PlaceAgentConfig struct {
	State             StateId           `json:"state"`
	AgentID           string            `json:"agent_id"`
	ParameterOverride map[string]any    `json:"parameter_override,omitempty"`
	TriggerRules      []Rule            `json:"trigger_rules,omitempty"`
	InputPathMap      map[string]string `json:"input_path_map,omitempty"`
	OutputPathMap     map[string]string `json:"output_path_map,omitempty"`
	Schedule          *AgentSchedule    `json:"schedule,omitempty"`
	Retry             AgentRetryPolicy  `json:"retry,omitempty"`
}

// AgentExecutionStatus enumerates the AgentExecution lifecycle.
type AgentExecutionStatus string

const (
	AgentExecutionPending   AgentExecutionStatus = "pending"
	AgentExecutionRunning   AgentExecutionStatus = "running"
	AgentExecutionCompleted AgentExecutionStatus = "completed"
	AgentExecutionFailed    AgentExecutionStatus = "failed"
	AgentExecutionCancelled AgentExecutionStatus = "cancelled"
)

// AgentExecution is one record of a place-agent having been enqueued.
type AgentExecution struct {
	ID                 string                 `gorm:"primaryKey;size:100" json:"id"`
	AgentID            string                 `gorm:"size:100" json:"agent_id"`
	TriggeringResource string                 `gorm:"size:100;index" json:"triggering_resource_id"`
	TenantID           string                 `gorm:"size:100;index" json:"tenant_id,omitempty"`
	Status             AgentExecutionStatus   `gorm:"size:20" json:"status"`
	Input              map[string]interface{} `gorm:"serializer:json" json:"input,omitempty"`
	Output             map[string]interface{} `gorm:"serializer:json" json:"output,omitempty"`
	Error              string                 `json:"error,omitempty"`
	StartedAt          time.Time              `json:"started_at"`
	EndedAt            *time.Time             `json:"ended_at,omitempty"`
	Duration           time.Duration          `json:"duration,omitempty"`
}

func (AgentExecution) TableName() string { return "sc_workflow_agent_executions" }
