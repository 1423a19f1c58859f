// Package workflow implements the automation graph execution engine: the
// executor that walks a node graph, the scheduler that resumes delayed runs
// and the dispatcher that matches domain events to automations.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/helixcrm/automation/pkg/eventbus"
	"github.com/helixcrm/automation/pkg/events"
	"github.com/helixcrm/automation/pkg/expression"
	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/otelhelper"
	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/protocol"
	"github.com/helixcrm/automation/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrAutomationNotApproved indicates the approval gate rejected an execution
// before any run state was touched.
var ErrAutomationNotApproved = errors.New("automation requires approval")

// Executor walks one automation graph to completion or to a delay suspension
// point, persisting a step record for every node visit. It is stateless
// between invocations; all continuation state lives in the delayed_jobs table.
type Executor struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	tracer      trace.Tracer

	// Injectable for deterministic tests.
	now       func() time.Time
	randFloat func() float64
}

// NewExecutor creates a graph executor. The event bus may be nil when no
// lifecycle notifications are wanted.
func NewExecutor(logger *slog.Logger, persist persistence.Persistence, reg *registry.Registry, bus eventbus.EventBus) *Executor {
	return &Executor{
		logger:      logger.With("module", "graph_executor"),
		persistence: persist,
		registry:    reg,
		eventBus:    bus,
		tracer:      otel.Tracer("helixcrm/automation"),
		now:         time.Now,
		randFloat:   rand.Float64,
	}
}

// RunGraph executes graph for the given automation against runContext. When
// runID is empty a new run row is created; otherwise execution resumes on the
// existing run (continuation after a delay). Returns the run id.
//
// Failure of any node writes a failed step, marks the run failed and halts
// the walk immediately. A clean walk ends success, or waiting when the walk
// suspended at one or more delay nodes.
func (e *Executor) RunGraph(ctx context.Context, automation *models.Automation, graph *models.Graph, runContext map[string]any, runID string) (string, error) {
	if automation.ApprovalBlocked() {
		return "", fmt.Errorf("automation %s has approval status %q: %w",
			automation.ID, automation.ApprovalStatus, ErrAutomationNotApproved)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run_graph",
		attribute.String(otelhelper.OrgIDKey, automation.OrgID),
		attribute.String(otelhelper.AutomationIDKey, automation.ID),
	)
	defer span.End()

	logger := e.logger.With("org_id", automation.OrgID, "automation_id", automation.ID)

	resumed := runID != ""

	if resumed {
		err := e.persistence.Runs().UpdateStatus(ctx, runID, models.RunStatusRunning, "", nil)
		if err != nil {
			return "", fmt.Errorf("failed to resume run %s: %w", runID, err)
		}
	} else {
		run := &models.Run{
			OrgID:        automation.OrgID,
			AutomationID: automation.ID,
			Context:      runContext,
			Status:       models.RunStatusRunning,
			StartedAt:    e.now().UTC(),
		}

		err := e.persistence.Runs().Create(ctx, run)
		if err != nil {
			return "", fmt.Errorf("failed to create run: %w", err)
		}

		runID = run.ID

		e.publish(ctx, events.RunStarted{BaseEvent: e.baseEvent(runID, automation)})
	}

	logger = logger.With("run_id", runID)
	logger.InfoContext(ctx, "Starting graph execution", "resumed", resumed, "nodes", len(graph.Nodes))

	queue := graph.StartNodes()
	delaysScheduled := 0

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		node, found := graph.NodeByID(nodeID)
		if !found {
			logger.WarnContext(ctx, "Queued node missing from graph, skipping", "node_id", nodeID)

			continue
		}

		err := e.executeNode(ctx, automation, graph, node, runContext, runID, &queue, &delaysScheduled)
		if err != nil {
			now := e.now().UTC()

			updateErr := e.persistence.Runs().UpdateStatus(ctx, runID, models.RunStatusFailed, err.Error(), &now)
			if updateErr != nil {
				logger.ErrorContext(ctx, "Failed to mark run failed", "error", updateErr)
			}

			e.publish(ctx, events.RunFailed{
				BaseEvent: e.baseEvent(runID, automation),
				NodeID:    node.ID,
				Error:     err.Error(),
			})

			logger.ErrorContext(ctx, "Graph execution failed", "node_id", node.ID, "error", err)

			return runID, fmt.Errorf("node %s failed: %w", node.ID, err)
		}
	}

	status := models.RunStatusSuccess

	var finishedAt *time.Time

	if delaysScheduled > 0 {
		// The run parked at a delay node; a scheduler pass will pick it
		// back up, so it is waiting rather than done.
		status = models.RunStatusWaiting
	} else {
		now := e.now().UTC()
		finishedAt = &now
	}

	err := e.persistence.Runs().UpdateStatus(ctx, runID, status, "", finishedAt)
	if err != nil {
		return runID, fmt.Errorf("failed to finish run: %w", err)
	}

	e.publish(ctx, events.RunFinished{
		BaseEvent: e.baseEvent(runID, automation),
		Status:    string(status),
	})

	logger.InfoContext(ctx, "Graph execution finished", "status", status)

	return runID, nil
}

// executeNode dispatches one node by type, appends its step record and
// enqueues successors. The returned error is the node's failure, already
// recorded on the step.
func (e *Executor) executeNode(ctx context.Context, automation *models.Automation, graph *models.Graph, node models.Node, runContext map[string]any, runID string, queue *[]string, delaysScheduled *int) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	step := &models.Step{
		RunID:     runID,
		NodeID:    node.ID,
		NodeType:  node.Type,
		Input:     node.Config,
		StartedAt: e.now().UTC(),
	}

	var (
		output map[string]any
		err    error
	)

	switch node.Type {
	case models.NodeTypeAction:
		output, err = e.executeAction(ctx, automation, graph, node, runContext, runID, queue, step)
	case models.NodeTypeCondition:
		output = e.executeCondition(graph, node, runContext, queue)
	case models.NodeTypeSplit:
		output, err = e.executeSplit(graph, node, queue)
	case models.NodeTypeDelay:
		output, err = e.executeDelay(ctx, automation, node, runContext, runID)
		if err == nil {
			*delaysScheduled++
		}
	default:
		err = fmt.Errorf("unsupported node type %q: %w", node.Type, models.ErrInvalidGraph)
	}

	step.FinishedAt = e.now().UTC()
	step.Output = output

	if err != nil {
		step.Status = models.StepStatusFailed
		step.Error = err.Error()
	} else {
		step.Status = models.StepStatusSuccess
	}

	appendErr := e.persistence.Steps().Append(ctx, step)
	if appendErr != nil {
		e.logger.ErrorContext(ctx, "Failed to append step record",
			"run_id", runID, "node_id", node.ID, "error", appendErr)

		if err == nil {
			err = fmt.Errorf("failed to record step: %w", appendErr)
		}
	}

	return err
}

// executeAction substitutes the node config, runs the registered handler and
// enqueues unconditioned successors.
func (e *Executor) executeAction(ctx context.Context, automation *models.Automation, graph *models.Graph, node models.Node, runContext map[string]any, runID string, queue *[]string, step *models.Step) (map[string]any, error) {
	action, err := e.registry.Action(node.Name)
	if err != nil {
		return nil, err
	}

	input, err := expression.Substitute(node.Config, runContext)
	if err != nil {
		return nil, fmt.Errorf("failed to substitute config for action %s: %w", node.Name, err)
	}

	step.Input = input

	actionCtx := protocol.ActionContext{
		OrgID:        automation.OrgID,
		AutomationID: automation.ID,
		RunID:        runID,
	}

	output, err := action.Execute(ctx, actionCtx, input)
	if err != nil {
		return nil, err
	}

	for _, edge := range graph.OutgoingEdges(node.ID) {
		if edge.Condition == "" {
			*queue = append(*queue, edge.To)
		}
	}

	return output, nil
}

// executeCondition evaluates the node's expression and enqueues the matching
// branch. A branch with no matching edge is a legitimate dead end, not an
// error.
func (e *Executor) executeCondition(graph *models.Graph, node models.Node, runContext map[string]any, queue *[]string) map[string]any {
	pass := expression.EvalCondition(node.ConditionExpr(), runContext)

	branch := models.BranchFalse
	if pass {
		branch = models.BranchTrue
	}

	for _, edge := range graph.OutgoingEdges(node.ID) {
		if edge.Condition == branch {
			*queue = append(*queue, edge.To)
		}
	}

	return map[string]any{"pass": pass, "branch": branch}
}

// executeSplit picks one eligible arm by weighted random draw and enqueues
// its edge target. A split with no arms or no arm-edge match is an authoring
// bug and fails the run.
func (e *Executor) executeSplit(graph *models.Graph, node models.Node, queue *[]string) (map[string]any, error) {
	arms, err := node.SplitArms()
	if err != nil {
		return nil, err
	}

	outgoing := graph.OutgoingEdges(node.ID)

	type eligibleArm struct {
		arm    models.SplitArm
		target string
	}

	eligible := make([]eligibleArm, 0, len(arms))
	totalWeight := 0.0

	for _, arm := range arms {
		for _, edge := range outgoing {
			if edge.Condition == arm.Label {
				eligible = append(eligible, eligibleArm{arm: arm, target: edge.To})
				totalWeight += arm.Weight

				break
			}
		}
	}

	if len(eligible) == 0 {
		return nil, fmt.Errorf("split node %q has no arm with a matching edge: %w", node.ID, models.ErrInvalidGraph)
	}

	if totalWeight <= 0 {
		return nil, fmt.Errorf("split node %q has no positive arm weight: %w", node.ID, models.ErrInvalidGraph)
	}

	// Cumulative-weight draw: uniform over the total, first arm whose
	// cumulative sum exceeds the draw wins. Zero-weight arms can never win.
	draw := e.randFloat() * totalWeight
	cumulative := 0.0
	chosen := eligible[len(eligible)-1]

	for _, candidate := range eligible {
		cumulative += candidate.arm.Weight
		if cumulative > draw {
			chosen = candidate

			break
		}
	}

	*queue = append(*queue, chosen.target)

	return map[string]any{"arm": chosen.arm.Label, "weight": chosen.arm.Weight}, nil
}

// executeDelay persists a continuation marker and does not enqueue
// successors; a later scheduler pass resumes the run from them.
func (e *Executor) executeDelay(ctx context.Context, automation *models.Automation, node models.Node, runContext map[string]any, runID string) (map[string]any, error) {
	wait, err := node.DelayDuration()
	if err != nil {
		return nil, err
	}

	job := &models.DelayedJob{
		OrgID:        automation.OrgID,
		AutomationID: automation.ID,
		RunID:        runID,
		NodeID:       node.ID,
		ExecuteAt:    e.now().UTC().Add(wait),
		Payload:      runContext,
		CreatedAt:    e.now().UTC(),
	}

	err = e.persistence.DelayedJobs().Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule delayed job: %w", err)
	}

	return map[string]any{
		"execute_at": job.ExecuteAt.Format(time.RFC3339),
		"delay_ms":   wait.Milliseconds(),
	}, nil
}

func (e *Executor) baseEvent(runID string, automation *models.Automation) events.BaseEvent {
	return events.BaseEvent{
		RunID:        runID,
		OrgID:        automation.OrgID,
		AutomationID: automation.ID,
		Timestamp:    e.now().UTC(),
	}
}

func (e *Executor) publish(ctx context.Context, event events.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}
