// Package memory provides an in-memory persistence implementation for unit
// tests and local development. It mirrors the PostgreSQL layer's behavior,
// including not-found errors and due-job ordering.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
)

// Persistence implements persistence.Persistence with in-memory maps.
type Persistence struct {
	mu sync.RWMutex

	automations map[string]*models.Automation
	runs        map[string]*models.Run
	steps       []*models.Step
	delayedJobs map[string]*models.DelayedJob
	events      map[string]*models.Event

	// CRM side-effect rows, exported through accessors for test assertions.
	emails       []*models.OutboundEmail
	dealStages   map[string]string
	tasks        []*models.Task
	proformas    []*models.Proforma
	reservations []*models.StockReservation
}

// NewPersistence creates an empty in-memory persistence layer.
func NewPersistence() *Persistence {
	return &Persistence{
		automations: make(map[string]*models.Automation),
		runs:        make(map[string]*models.Run),
		delayedJobs: make(map[string]*models.DelayedJob),
		events:      make(map[string]*models.Event),
		dealStages:  make(map[string]string),
	}
}

func (p *Persistence) Automations() persistence.AutomationRepository { return (*automationRepo)(p) }
func (p *Persistence) Runs() persistence.RunRepository               { return (*runRepo)(p) }
func (p *Persistence) Steps() persistence.StepRepository             { return (*stepRepo)(p) }
func (p *Persistence) DelayedJobs() persistence.DelayedJobRepository { return (*delayedJobRepo)(p) }
func (p *Persistence) Events() persistence.EventRepository           { return (*eventRepo)(p) }
func (p *Persistence) CRM() persistence.CRMStore                     { return (*crmStore)(p) }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

type automationRepo Persistence

func (r *automationRepo) Save(_ context.Context, automation *models.Automation) error {
	if automation.ID == "" {
		automation.ID = newID()
	}

	now := time.Now().UTC()
	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	err := models.ValidateAutomation(automation)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *automation
	r.automations[automation.ID] = &copied

	return nil
}

func (r *automationRepo) ByID(_ context.Context, id string) (*models.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	automation, ok := r.automations[id]
	if !ok {
		return nil, fmt.Errorf("automation %s: %w", id, persistence.ErrAutomationNotFound)
	}

	copied := *automation

	return &copied, nil
}

func (r *automationRepo) ActiveByOrg(_ context.Context, orgID string) ([]*models.Automation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	automations := make([]*models.Automation, 0)

	for _, automation := range r.automations {
		if automation.OrgID == orgID && automation.Status == models.AutomationStatusActive {
			copied := *automation
			automations = append(automations, &copied)
		}
	}

	sort.Slice(automations, func(i, j int) bool {
		return automations[i].CreatedAt.Before(automations[j].CreatedAt)
	})

	return automations, nil
}

func (r *automationRepo) MarkTriggered(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	automation, ok := r.automations[id]
	if !ok {
		return fmt.Errorf("automation %s: %w", id, persistence.ErrAutomationNotFound)
	}

	automation.LastTriggeredAt = &at

	return nil
}

type runRepo Persistence

func (r *runRepo) Create(_ context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = newID()
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *run
	r.runs[run.ID] = &copied

	return nil
}

func (r *runRepo) ByID(_ context.Context, id string) (*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, persistence.ErrRunNotFound)
	}

	copied := *run

	return &copied, nil
}

func (r *runRepo) UpdateStatus(_ context.Context, id string, status models.RunStatus, lastError string, finishedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, persistence.ErrRunNotFound)
	}

	run.Status = status
	run.LastError = lastError
	run.FinishedAt = finishedAt

	return nil
}

func (r *runRepo) ListByAutomation(_ context.Context, automationID string) ([]*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*models.Run, 0)

	for _, run := range r.runs {
		if run.AutomationID == automationID {
			copied := *run
			runs = append(runs, &copied)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

type stepRepo Persistence

func (r *stepRepo) Append(_ context.Context, step *models.Step) error {
	if step.ID == "" {
		step.ID = newID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *step
	r.steps = append(r.steps, &copied)

	return nil
}

func (r *stepRepo) ListByRun(_ context.Context, runID string) ([]*models.Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]*models.Step, 0)

	for _, step := range r.steps {
		if step.RunID == runID {
			copied := *step
			steps = append(steps, &copied)
		}
	}

	return steps, nil
}

type delayedJobRepo Persistence

func (r *delayedJobRepo) Create(_ context.Context, job *models.DelayedJob) error {
	if job.ID == "" {
		job.ID = newID()
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *job
	r.delayedJobs[job.ID] = &copied

	return nil
}

func (r *delayedJobRepo) Due(_ context.Context, now time.Time) ([]*models.DelayedJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*models.DelayedJob, 0)

	for _, job := range r.delayedJobs {
		if !job.ExecuteAt.After(now) {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ExecuteAt.Before(jobs[j].ExecuteAt)
	})

	return jobs, nil
}

func (r *delayedJobRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.delayedJobs[id]
	if !ok {
		return fmt.Errorf("delayed job %s: %w", id, persistence.ErrDelayedJobNotFound)
	}

	delete(r.delayedJobs, id)

	return nil
}

// AllDelayedJobs returns every outstanding delayed job, for test assertions.
func (p *Persistence) AllDelayedJobs() []*models.DelayedJob {
	p.mu.RLock()
	defer p.mu.RUnlock()

	jobs := make([]*models.DelayedJob, 0, len(p.delayedJobs))

	for _, job := range p.delayedJobs {
		copied := *job
		jobs = append(jobs, &copied)
	}

	return jobs
}

type eventRepo Persistence

func (r *eventRepo) Append(_ context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = newID()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *event
	r.events[event.ID] = &copied

	return nil
}

func (r *eventRepo) Unprocessed(_ context.Context, limit int) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]*models.Event, 0)

	for _, event := range r.events {
		if !event.Processed {
			copied := *event
			events = append(events, &copied)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

func (r *eventRepo) MarkProcessed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, persistence.ErrEventNotFound)
	}

	event.Processed = true

	return nil
}

type crmStore Persistence

func (s *crmStore) InsertEmail(_ context.Context, email *models.OutboundEmail) error {
	if email.ID == "" {
		email.ID = newID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *email
	s.emails = append(s.emails, &copied)

	return nil
}

func (s *crmStore) UpdateDealStage(_ context.Context, orgID, dealID, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dealStages[orgID+"/"+dealID] = stage

	return nil
}

func (s *crmStore) InsertTask(_ context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = newID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *task
	s.tasks = append(s.tasks, &copied)

	return nil
}

func (s *crmStore) InsertProforma(_ context.Context, proforma *models.Proforma) error {
	if proforma.ID == "" {
		proforma.ID = newID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *proforma
	s.proformas = append(s.proformas, &copied)

	return nil
}

func (s *crmStore) InsertStockReservation(_ context.Context, reservation *models.StockReservation) error {
	if reservation.ID == "" {
		reservation.ID = newID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *reservation
	s.reservations = append(s.reservations, &copied)

	return nil
}

// Test accessors for CRM side-effect rows.

func (p *Persistence) Emails() []*models.OutboundEmail {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]*models.OutboundEmail(nil), p.emails...)
}

func (p *Persistence) DealStage(orgID, dealID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stage, ok := p.dealStages[orgID+"/"+dealID]

	return stage, ok
}

func (p *Persistence) Tasks() []*models.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]*models.Task(nil), p.tasks...)
}

func (p *Persistence) Proformas() []*models.Proforma {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]*models.Proforma(nil), p.proformas...)
}

func (p *Persistence) StockReservations() []*models.StockReservation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]*models.StockReservation(nil), p.reservations...)
}
