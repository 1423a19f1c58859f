package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
)

const defaultBatchSize = 50

// Dispatcher bridges the domain event log to automation invocation: it reads
// unprocessed events, fans each out to the matching active automations and
// marks the event processed afterwards. Processing is at-least-once; a crash
// between fan-out and marking replays the event on the next pass.
type Dispatcher struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    *Executor
	batchSize   int

	now func() time.Time
}

// NewDispatcher creates a trigger dispatcher. batchSize bounds how many
// events one pass consumes; zero or negative uses the default.
func NewDispatcher(logger *slog.Logger, persist persistence.Persistence, executor *Executor, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Dispatcher{
		logger:      logger.With("module", "trigger_dispatcher"),
		persistence: persist,
		executor:    executor,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// DispatchPass consumes one bounded batch of unprocessed events. One
// automation failing does not block the others, and one event's matching
// failure does not stop the batch.
func (d *Dispatcher) DispatchPass(ctx context.Context) error {
	batch, err := d.persistence.Events().Unprocessed(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("failed to load unprocessed events: %w", err)
	}

	if len(batch) == 0 {
		return nil
	}

	d.logger.InfoContext(ctx, "Dispatching event batch", "count", len(batch))

	for _, event := range batch {
		if err := d.dispatchEvent(ctx, event); err != nil {
			// Leave the event unprocessed so the next pass retries it.
			d.logger.ErrorContext(ctx, "Failed to dispatch event, leaving it for retry",
				"event_id", event.ID, "error", err)

			continue
		}

		err := d.persistence.Events().MarkProcessed(ctx, event.ID)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to mark event processed",
				"event_id", event.ID, "error", err)
		}
	}

	return nil
}

func (d *Dispatcher) dispatchEvent(ctx context.Context, event *models.Event) error {
	logger := d.logger.With("event_id", event.ID, "event_type", event.EventType, "org_id", event.OrgID)

	automations, err := d.persistence.Automations().ActiveByOrg(ctx, event.OrgID)
	if err != nil {
		return fmt.Errorf("failed to load automations for event %s: %w", event.ID, err)
	}

	matched := 0

	for _, automation := range automations {
		if !automation.MatchesEvent(event.EventType) {
			continue
		}

		matched++

		runID, err := d.executor.RunGraph(ctx, automation, automation.Graph, event.RunContext(), "")
		if err != nil {
			logger.ErrorContext(ctx, "Automation run failed",
				"automation_id", automation.ID, "run_id", runID, "error", err)
		}

		err = d.persistence.Automations().MarkTriggered(ctx, automation.ID, d.now().UTC())
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record trigger bookkeeping",
				"automation_id", automation.ID, "error", err)
		}
	}

	logger.InfoContext(ctx, "Event dispatched", "matched", matched)

	return nil
}

// RunManual invokes one active automation directly with the given context,
// outside the event log. Used by the manual trigger mode of the API.
func (d *Dispatcher) RunManual(ctx context.Context, automationID string, runContext map[string]any) (string, error) {
	automation, err := d.persistence.Automations().ByID(ctx, automationID)
	if err != nil {
		return "", err
	}

	if automation.Status != models.AutomationStatusActive {
		return "", fmt.Errorf("automation %s is %s, not active", automation.ID, automation.Status)
	}

	if runContext == nil {
		runContext = map[string]any{}
	}

	runID, err := d.executor.RunGraph(ctx, automation, automation.Graph, runContext, "")
	if err != nil {
		return runID, err
	}

	err = d.persistence.Automations().MarkTriggered(ctx, automation.ID, d.now().UTC())
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to record trigger bookkeeping",
			"automation_id", automation.ID, "error", err)
	}

	return runID, nil
}
