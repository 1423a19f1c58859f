package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence/memory"
	"github.com/helixcrm/automation/pkg/protocol"
	"github.com/helixcrm/automation/pkg/registry"
)

// recordingAction captures every invocation so tests can assert on the
// substituted input the executor hands to registered actions.
type recordingAction struct {
	id     string
	output map[string]any
	err    error
	calls  []map[string]any
}

func (a *recordingAction) ID() string {
	return a.id
}

func (a *recordingAction) Execute(_ context.Context, _ protocol.ActionContext, input map[string]any) (map[string]any, error) {
	a.calls = append(a.calls, input)

	if a.err != nil {
		return nil, a.err
	}

	return a.output, nil
}

func testExecutor(t *testing.T) (*Executor, *memory.Persistence, *registry.Registry) {
	t.Helper()

	store := memory.NewPersistence()
	reg := registry.NewRegistry(slog.Default())
	executor := NewExecutor(slog.Default(), store, reg, nil)
	executor.now = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}

	return executor, store, reg
}

func activeAutomation(graph *models.Graph) *models.Automation {
	return &models.Automation{
		ID:      "auto-1",
		OrgID:   "org-1",
		Name:    "test automation",
		Status:  models.AutomationStatusActive,
		Trigger: models.Trigger{Kind: models.TriggerKindEvent, EventType: "contact.created"},
		Graph:   graph,
	}
}

func TestRunGraphSubstitutesActionConfig(t *testing.T) {
	executor, store, reg := testExecutor(t)
	ctx := context.Background()

	action := &recordingAction{id: "email.send", output: map[string]any{"queued": true}}
	reg.Register(action)

	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "send", Type: models.NodeTypeAction, Name: "email.send", Config: map[string]any{
				"to":      "{{context.contact.email}}",
				"subject": "Hi {{context.contact.name}}",
			}},
		},
	}

	runContext := map[string]any{
		"contact": map[string]any{"email": "ada@example.com", "name": "Ada"},
	}

	runID, err := executor.RunGraph(ctx, activeAutomation(graph), graph, runContext, "")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.Len(t, action.calls, 1)
	assert.Equal(t, map[string]any{
		"to":      "ada@example.com",
		"subject": "Hi Ada",
	}, action.calls[0])

	run, err := store.Runs().ByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	require.NotNil(t, run.FinishedAt)

	steps, err := store.Steps().ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "send", steps[0].NodeID)
	assert.Equal(t, models.StepStatusSuccess, steps[0].Status)
	assert.Equal(t, "ada@example.com", steps[0].Input["to"])
	assert.Equal(t, map[string]any{"queued": true}, steps[0].Output)
}

func TestRunGraphRecordsOneStepPerNode(t *testing.T) {
	executor, store, reg := testExecutor(t)
	ctx := context.Background()

	reg.Register(&recordingAction{id: "a1"})
	reg.Register(&recordingAction{id: "a2"})
	reg.Register(&recordingAction{id: "a3"})

	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "first", Type: models.NodeTypeAction, Name: "a1"},
			{ID: "second", Type: models.NodeTypeAction, Name: "a2"},
			{ID: "third", Type: models.NodeTypeAction, Name: "a3"},
		},
		Edges: []models.Edge{
			{From: "first", To: "second"},
			{From: "second", To: "third"},
		},
	}

	runID, err := executor.RunGraph(ctx, activeAutomation(graph), graph, map[string]any{}, "")
	require.NoError(t, err)

	steps, err := store.Steps().ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	visited := []string{steps[0].NodeID, steps[1].NodeID, steps[2].NodeID}
	assert.Equal(t, []string{"first", "second", "third"}, visited)

	for _, step := range steps {
		assert.Equal(t, models.StepStatusSuccess, step.Status)
	}
}

func TestRunGraphConditionBranches(t *testing.T) {
	tests := []struct {
		name          string
		score         float64
		expectedCalls map[string]int
		branch        string
	}{
		{
			name:          "true branch",
			score:         72,
			expectedCalls: map[string]int{"winner": 1, "loser": 0},
			branch:        models.BranchTrue,
		},
		{
			name:          "false branch",
			score:         10,
			expectedCalls: map[string]int{"winner": 0, "loser": 1},
			branch:        models.BranchFalse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, store, reg := testExecutor(t)
			ctx := context.Background()

			winner := &recordingAction{id: "winner"}
			loser := &recordingAction{id: "loser"}
			reg.Register(winner)
			reg.Register(loser)

			graph := &models.Graph{
				Nodes: []models.Node{
					{ID: "check", Type: models.NodeTypeCondition, Config: map[string]any{
						"expr": "{{context.contact.score}} > 50",
					}},
					{ID: "yes", Type: models.NodeTypeAction, Name: "winner"},
					{ID: "no", Type: models.NodeTypeAction, Name: "loser"},
				},
				Edges: []models.Edge{
					{From: "check", To: "yes", Condition: models.BranchTrue},
					{From: "check", To: "no", Condition: models.BranchFalse},
				},
			}

			runContext := map[string]any{"contact": map[string]any{"score": tt.score}}

			runID, err := executor.RunGraph(ctx, activeAutomation(graph), graph, runContext, "")
			require.NoError(t, err)

			assert.Len(t, winner.calls, tt.expectedCalls["winner"])
			assert.Len(t, loser.calls, tt.expectedCalls["loser"])

			steps, err := store.Steps().ListByRun(ctx, runID)
			require.NoError(t, err)
			require.NotEmpty(t, steps)
			assert.Equal(t, tt.branch, steps[0].Output["branch"])
		})
	}
}

func TestRunGraphConditionDeadEndFinishesClean(t *testing.T) {
	executor, store, _ := testExecutor(t)
	ctx := context.Background()

	// No false edge: a failed condition is a dead end, not an error.
	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "check", Type: models.NodeTypeCondition, Config: map[string]any{"expr": "false"}},
		},
	}

	runID, err := executor.RunGraph(ctx, activeAutomation(graph), graph, map[string]any{}, "")
	require.NoError(t, err)

	run, err := store.Runs().ByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
}

func TestRunGraphSplitDraw(t *testing.T) {
	splitGraph := func() *models.Graph {
		return &models.Graph{
			Nodes: []models.Node{
				{ID: "split", Type: models.NodeTypeSplit, Config: map[string]any{
					"arms": []any{
						map[string]any{"label": "variant_a", "weight": 75.0},
						map[string]any{"label": "variant_b", "weight": 25.0},
					},
				}},
				{ID: "a", Type: models.NodeTypeAction, Name: "arm_a"},
				{ID: "b", Type: models.NodeTypeAction, Name: "arm_b"},
			},
			Edges: []models.Edge{
				{From: "split", To: "a", Condition: "variant_a"},
				{From: "split", To: "b", Condition: "variant_b"},
			},
		}
	}

	tests := []struct {
		name     string
		draw     float64
		expected string
	}{
		{name: "low draw picks the first arm", draw: 0.0, expected: "variant_a"},
		{name: "draw inside the first band", draw: 0.74, expected: "variant_a"},
		{name: "draw past the first band picks the second arm", draw: 0.75, expected: "variant_b"},
		{name: "high draw picks the second arm", draw: 0.99, expected: "variant_b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, store, reg := testExecutor(t)
			executor.randFloat = func() float64 { return tt.draw }

			reg.Register(&recordingAction{id: "arm_a"})
			reg.Register(&recordingAction{id: "arm_b"})

			graph := splitGraph()

			runID, err := executor.RunGraph(context.Background(), activeAutomation(graph), graph, map[string]any{}, "")
			require.NoError(t, err)

			steps, err := store.Steps().ListByRun(context.Background(), runID)
			require.NoError(t, err)
			require.NotEmpty(t, steps)
			assert.Equal(t, tt.expected, steps[0].Output["arm"])
		})
	}
}

func TestRunGraphSplitDrawConvergesOnWeights(t *testing.T) {
	executor, _, _ := testExecutor(t)

	rng := rand.New(rand.NewPCG(7, 13))
	executor.randFloat = rng.Float64

	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "split", Type: models.NodeTypeSplit, Config: map[string]any{
				"arms": []any{
					map[string]any{"label": "variant_a", "weight": 1.0},
					map[string]any{"label": "variant_b", "weight": 3.0},
				},
			}},
			{ID: "a", Type: models.NodeTypeAction, Name: "arm_a"},
			{ID: "b", Type: models.NodeTypeAction, Name: "arm_b"},
		},
		Edges: []models.Edge{
			{From: "split", To: "a", Condition: "variant_a"},
			{From: "split", To: "b", Condition: "variant_b"},
		},
	}

	const draws = 5000

	picks := map[string]int{}

	for range draws {
		queue := []string{}

		output, err := executor.executeSplit(graph, graph.Nodes[0], &queue)
		require.NoError(t, err)

		picks[output["arm"].(string)]++
	}

	assert.Equal(t, draws, picks["variant_a"]+picks["variant_b"])

	// Weight 3 out of 4: the heavy arm should win about 75% of draws.
	heavyShare := float64(picks["variant_b"]) / draws
	assert.InDelta(t, 0.75, heavyShare, 0.02)
}

func TestRunGraphSplitZeroWeightArmNeverWins(t *testing.T) {
	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "split", Type: models.NodeTypeSplit, Config: map[string]any{
				"arms": []any{
					map[string]any{"label": "dead", "weight": 0.0},
					map[string]any{"label": "alive", "weight": 100.0},
				},
			}},
			{ID: "d", Type: models.NodeTypeAction, Name: "dead_arm"},
			{ID: "l", Type: models.NodeTypeAction, Name: "live_arm"},
		},
		Edges: []models.Edge{
			{From: "split", To: "d", Condition: "dead"},
			{From: "split", To: "l", Condition: "alive"},
		},
	}

	for _, draw := range []float64{0.0, 0.001, 0.5, 0.999} {
		executor, store, reg := testExecutor(t)
		executor.randFloat = func() float64 { return draw }

		dead := &recordingAction{id: "dead_arm"}
		live := &recordingAction{id: "live_arm"}
		reg.Register(dead)
		reg.Register(live)

		runID, err := executor.RunGraph(context.Background(), activeAutomation(graph), graph, map[string]any{}, "")
		require.NoError(t, err, "draw %f", draw)

		assert.Empty(t, dead.calls, "draw %f must not pick the zero-weight arm", draw)
		assert.Len(t, live.calls, 1, "draw %f", draw)

		steps, err := store.Steps().ListByRun(context.Background(), runID)
		require.NoError(t, err)
		assert.Equal(t, "alive", steps[0].Output["arm"])
	}
}

func TestRunGraphSplitWithoutMatchingEdgesFails(t *testing.T) {
	executor, store, _ := testExecutor(t)
	ctx := context.Background()

	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "split", Type: models.NodeTypeSplit, Config: map[string]any{
				"arms": []any{map[string]any{"label": "orphan", "weight": 50.0}},
			}},
		},
	}

	runID, err := executor.RunGraph(ctx, activeAutomation(graph), graph, map[string]any{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidGraph)

	run, err := store.Runs().ByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestRunGraphDelaySuspendsRun(t *testing.T) {
	executor, store, reg := testExecutor(t)
	ctx := context.Background()

	before := &recordingAction{id: "before_delay"}
	after := &recordingAction{id: "after_delay"}
	reg.Register(before)
	reg.Register(after)

	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "prep", Type: models.NodeTypeAction, Name: "before_delay"},
			{ID: "wait", Type: models.NodeTypeDelay, Config: map[string]any{"ms": 60000.0}},
			{ID: "follow", Type: models.NodeTypeAction, Name: "after_delay"},
		},
		Edges: []models.Edge{
			{From: "prep", To: "wait"},
			{From: "wait", To: "follow"},
		},
	}

	runContext := map[string]any{"deal": map[string]any{"id": "deal-9"}}

	runID, err := executor.RunGraph(ctx, activeAutomation(graph), graph, runContext, "")
	require.NoError(t, err)

	// The follow-up node must not run in this execution.
	assert.Len(t, before.calls, 1)
	assert.Empty(t, after.calls)

	run, err := store.Runs().ByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaiting, run.Status)
	assert.Nil(t, run.FinishedAt)

	jobs := store.AllDelayedJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, runID, jobs[0].RunID)
	assert.Equal(t, "wait", jobs[0].NodeID)
	assert.Equal(t, runContext, jobs[0].Payload)
	assert.Equal(t, executor.now().Add(time.Minute), jobs[0].ExecuteAt)

	steps, err := store.Steps().ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "wait", steps[1].NodeID)
	assert.EqualValues(t, 60000, steps[1].Output["delay_ms"])
}

func TestRunGraphResumeAppendsToExistingRun(t *testing.T) {
	executor, store, reg := testExecutor(t)
	ctx := context.Background()

	after := &recordingAction{id: "after_delay"}
	reg.Register(after)

	run := &models.Run{
		OrgID:        "org-1",
		AutomationID: "auto-1",
		Status:       models.RunStatusWaiting,
		StartedAt:    executor.now(),
	}
	require.NoError(t, store.Runs().Create(ctx, run))

	subgraph := &models.Graph{
		Nodes: []models.Node{
			{ID: "follow", Type: models.NodeTypeAction, Name: "after_delay"},
		},
	}

	returnedID, err := executor.RunGraph(ctx, activeAutomation(subgraph), subgraph, map[string]any{}, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, returnedID)

	assert.Len(t, after.calls, 1)

	resumed, err := store.Runs().ByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, resumed.Status)
	require.NotNil(t, resumed.FinishedAt)

	runs, err := store.Runs().ListByAutomation(ctx, "auto-1")
	require.NoError(t, err)
	assert.Len(t, runs, 1, "resume must not create a second run")
}

func TestRunGraphUnknownActionFailsRun(t *testing.T) {
	executor, store, _ := testExecutor(t)
	ctx := context.Background()

	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "boom", Type: models.NodeTypeAction, Name: "not.registered"},
		},
	}

	runID, err := executor.RunGraph(ctx, activeAutomation(graph), graph, map[string]any{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownAction)

	run, err := store.Runs().ByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.LastError, "not.registered")
	require.NotNil(t, run.FinishedAt)

	steps, err := store.Steps().ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
	assert.Contains(t, steps[0].Error, "not.registered")
}

func TestRunGraphActionFailureHaltsWalk(t *testing.T) {
	executor, store, reg := testExecutor(t)
	ctx := context.Background()

	failing := &recordingAction{id: "explode", err: errors.New("smtp unavailable")}
	follower := &recordingAction{id: "never"}
	reg.Register(failing)
	reg.Register(follower)

	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "first", Type: models.NodeTypeAction, Name: "explode"},
			{ID: "second", Type: models.NodeTypeAction, Name: "never"},
		},
		Edges: []models.Edge{{From: "first", To: "second"}},
	}

	runID, err := executor.RunGraph(ctx, activeAutomation(graph), graph, map[string]any{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp unavailable")

	assert.Empty(t, follower.calls, "nodes after the failure must not run")

	run, err := store.Runs().ByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.LastError, "smtp unavailable")
}

func TestRunGraphApprovalGate(t *testing.T) {
	tests := []struct {
		name           string
		approvalStatus models.ApprovalStatus
		blocked        bool
	}{
		{name: "pending approval blocks", approvalStatus: models.ApprovalStatusPending, blocked: true},
		{name: "rejected approval blocks", approvalStatus: models.ApprovalStatusRejected, blocked: true},
		{name: "approved runs", approvalStatus: models.ApprovalStatusApproved, blocked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, store, reg := testExecutor(t)
			ctx := context.Background()

			action := &recordingAction{id: "email.send"}
			reg.Register(action)

			graph := &models.Graph{
				Nodes: []models.Node{
					{ID: "send", Type: models.NodeTypeAction, Name: "email.send"},
				},
			}

			automation := activeAutomation(graph)
			automation.RequiresApproval = true
			automation.ApprovalStatus = tt.approvalStatus

			runID, err := executor.RunGraph(ctx, automation, graph, map[string]any{}, "")

			runs, listErr := store.Runs().ListByAutomation(ctx, automation.ID)
			require.NoError(t, listErr)

			if tt.blocked {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrAutomationNotApproved)
				assert.Empty(t, runID)
				assert.Empty(t, runs, "a blocked execution must not create a run")
				assert.Empty(t, action.calls)
			} else {
				require.NoError(t, err)
				assert.Len(t, runs, 1)
				assert.Len(t, action.calls, 1)
			}
		})
	}
}

func TestRunGraphSkipsMissingQueuedNode(t *testing.T) {
	executor, store, reg := testExecutor(t)
	ctx := context.Background()

	reg.Register(&recordingAction{id: "a1"})

	// Edge points past the graph's node set; the walk warns and moves on.
	graph := &models.Graph{
		Nodes: []models.Node{
			{ID: "first", Type: models.NodeTypeAction, Name: "a1"},
			{ID: "ghost-target", Type: models.NodeTypeAction, Name: "a1"},
		},
		Edges: []models.Edge{{From: "first", To: "ghost-target"}},
	}

	trimmed := &models.Graph{
		Nodes: graph.Nodes[:1],
		Edges: graph.Edges,
	}

	runID, err := executor.RunGraph(ctx, activeAutomation(trimmed), trimmed, map[string]any{}, "")
	require.NoError(t, err)

	run, err := store.Runs().ByID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
}

func TestRunGraphUnsupportedNodeType(t *testing.T) {
	executor, _, _ := testExecutor(t)

	graph := &models.Graph{
		Nodes: []models.Node{{ID: "odd", Type: "teleport"}},
	}

	_, err := executor.RunGraph(context.Background(), activeAutomation(graph), graph, map[string]any{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%q", "teleport"))
}
