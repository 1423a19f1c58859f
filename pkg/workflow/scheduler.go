package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixcrm/automation/pkg/persistence"
)

// DelayScheduler resumes runs whose delay has elapsed. Each due job is
// consumed on attempt: the engine never retries a failed resumption itself,
// so the job row is deleted whether the resumed execution succeeded or
// failed, and the outcome lives in the run/step audit trail.
type DelayScheduler struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    *Executor

	now func() time.Time
}

// NewDelayScheduler creates a delay scheduler.
func NewDelayScheduler(logger *slog.Logger, persist persistence.Persistence, executor *Executor) *DelayScheduler {
	return &DelayScheduler{
		logger:      logger.With("module", "delay_scheduler"),
		persistence: persist,
		executor:    executor,
		now:         time.Now,
	}
}

// RunDuePass resumes every delayed job whose execute_at has passed. One
// job's failure does not stop the rest of the pass.
func (s *DelayScheduler) RunDuePass(ctx context.Context) error {
	now := s.now().UTC()

	jobs, err := s.persistence.DelayedJobs().Due(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due delayed jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	s.logger.InfoContext(ctx, "Resuming due delayed jobs", "count", len(jobs))

	for _, job := range jobs {
		logger := s.logger.With("job_id", job.ID, "run_id", job.RunID, "automation_id", job.AutomationID)

		automation, err := s.persistence.Automations().ByID(ctx, job.AutomationID)
		if err != nil {
			logger.ErrorContext(ctx, "Dropping delayed job for missing automation", "error", err)

			s.deleteJob(ctx, job.ID)

			continue
		}

		subgraph := automation.Graph.SuccessorSubgraph(job.NodeID)

		_, err = s.executor.RunGraph(ctx, automation, subgraph, job.Payload, job.RunID)
		if err != nil {
			logger.ErrorContext(ctx, "Resumed run failed", "error", err)
		}

		s.deleteJob(ctx, job.ID)
	}

	return nil
}

func (s *DelayScheduler) deleteJob(ctx context.Context, jobID string) {
	err := s.persistence.DelayedJobs().Delete(ctx, jobID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete delayed job", "job_id", jobID, "error", err)
	}
}
