package workflow_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/internal/pool"
	"github.com/castingclouds/circuit-breaker-sub002/storage"
	"github.com/castingclouds/circuit-breaker-sub002/types"
	"github.com/castingclouds/circuit-breaker-sub002/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrderWorkflow(t *testing.T, s storage.Store) {
	t.Helper()
	def := workflow.WorkflowDefinition{
		ID:           "order",
		Name:         "Order Fulfillment",
		States:       []string{"created", "paid", "shipped"},
		InitialState: "created",
		Activities: []workflow.Activity{
			{
				ID:         "pay",
				FromStates: []string{"created"},
				ToState:    "paid",
				Rules: []workflow.Rule{
					{Kind: workflow.RuleFieldGreaterThan, Path: "data.amount", Value: []byte("0")},
				},
			},
			{ID: "ship", FromStates: []string{"paid"}, ToState: "shipped"},
		},
	}
	_, err := s.CreateWorkflow(context.Background(), def)
	require.NoError(t, err)
}

func TestEngine_ExecuteActivity_HappyPath(t *testing.T) {
	s := storage.NewMemoryStore()
	seedOrderWorkflow(t, s)
	r, err := s.CreateResource(context.Background(), "order", "", map[string]interface{}{"amount": 42.0}, nil)
	require.NoError(t, err)

	e := workflow.NewEngine(s)
	updated, err := e.ExecuteActivity(context.Background(), r.ID, "pay", map[string]interface{}{"paid_by": "card"})
	require.NoError(t, err)
	assert.Equal(t, "paid", updated.CurrentState)
}

func TestEngine_ExecuteActivity_NotFound(t *testing.T) {
	s := storage.NewMemoryStore()
	seedOrderWorkflow(t, s)

	e := workflow.NewEngine(s)
	_, err := e.ExecuteActivity(context.Background(), "missing", "pay", nil)
	assert.Error(t, err)
}

func TestEngine_ExecuteActivity_ActivityNotFound(t *testing.T) {
	s := storage.NewMemoryStore()
	seedOrderWorkflow(t, s)
	r, err := s.CreateResource(context.Background(), "order", "", map[string]interface{}{"amount": 1.0}, nil)
	require.NoError(t, err)

	e := workflow.NewEngine(s)
	_, err = e.ExecuteActivity(context.Background(), r.ID, "cancel", nil)
	assert.Error(t, err)
}

func TestEngine_ExecuteActivity_DisabledByFromState(t *testing.T) {
	s := storage.NewMemoryStore()
	seedOrderWorkflow(t, s)
	r, err := s.CreateResource(context.Background(), "order", "", map[string]interface{}{"amount": 10.0}, nil)
	require.NoError(t, err)

	e := workflow.NewEngine(s)
	_, err = e.ExecuteActivity(context.Background(), r.ID, "ship", nil)
	assert.Error(t, err)
}

func TestEngine_ExecuteActivity_DisabledByGuardRule(t *testing.T) {
	s := storage.NewMemoryStore()
	seedOrderWorkflow(t, s)
	r, err := s.CreateResource(context.Background(), "order", "", map[string]interface{}{"amount": 0.0}, nil)
	require.NoError(t, err)

	e := workflow.NewEngine(s)
	_, err = e.ExecuteActivity(context.Background(), r.ID, "pay", nil)
	assert.Error(t, err)
}

func TestEngine_ExecuteActivity_SerializesPerResource(t *testing.T) {
	s := storage.NewMemoryStore()
	seedOrderWorkflow(t, s)
	r, err := s.CreateResource(context.Background(), "order", "", map[string]interface{}{"amount": 10.0}, nil)
	require.NoError(t, err)

	e := workflow.NewEngine(s)
	var wg sync.WaitGroup
	successes := atomic.Int32{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.ExecuteActivity(context.Background(), r.ID, "pay", nil); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	final, err := s.GetResource(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", final.CurrentState)
	assert.LessOrEqual(t, successes.Load(), int32(10))
}

// TestEngine_ExecuteActivity_ConcurrentSubmitYieldsConflict is scenario
// S5: two concurrent callers fire the same from-state-consuming
// activity on one resource; exactly one succeeds and every loser gets
// Conflict, never ActivityDisabled, since the transition it asked for
// did happen — just not for it.
func TestEngine_ExecuteActivity_ConcurrentSubmitYieldsConflict(t *testing.T) {
	s := storage.NewMemoryStore()
	seedOrderWorkflow(t, s)
	r, err := s.CreateResource(context.Background(), "order", "", map[string]interface{}{"amount": 10.0}, nil)
	require.NoError(t, err)

	e := workflow.NewEngine(s)
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = e.ExecuteActivity(context.Background(), r.ID, "pay", nil)
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		typedErr, ok := err.(*types.Error)
		require.True(t, ok, "expected a *types.Error, got %T: %v", err, err)
		assert.Equal(t, types.ErrConflict, typedErr.Code)
		conflicts++
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, conflicts)

	final, err := s.GetResource(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", final.CurrentState)
}

type recordingDispatcher struct {
	mu    sync.Mutex
	execs []workflow.AgentExecution
}

func (d *recordingDispatcher) Dispatch(_ context.Context, exec workflow.AgentExecution, _ workflow.PlaceAgentConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, exec)
	return nil
}

func TestEngine_ExecuteActivity_FiresPlaceAgentOnNewState(t *testing.T) {
	s := storage.NewMemoryStore()
	seedOrderWorkflow(t, s)
	r, err := s.CreateResource(context.Background(), "order", "", map[string]interface{}{"amount": 10.0}, nil)
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	p := pool.NewGoroutinePool(pool.DefaultGoroutinePoolConfig())

	e := workflow.NewEngine(s,
		workflow.WithAgentDispatcher(dispatcher, p),
		workflow.WithPlaceAgents("order", []workflow.PlaceAgentConfig{
			{State: "paid", AgentID: "notify-finance"},
		}),
	)

	_, err = e.ExecuteActivity(context.Background(), r.ID, "pay", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		dispatcher.mu.Lock()
		defer dispatcher.mu.Unlock()
		return len(dispatcher.execs) == 1
	}, time.Second, 5*time.Millisecond)
}
