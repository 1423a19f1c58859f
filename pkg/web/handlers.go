// Package web exposes the HTTP trigger endpoint for the automation runner.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/workflow"
)

// RunMode selects which passes a POST /run invocation performs.
const (
	ModeEvents = "events"
	ModeDelays = "delays"
	ModeAll    = "all"
	ModeManual = "manual"
)

type RunRequest struct {
	Mode         string         `json:"mode"          validate:"omitempty,oneof=events delays all manual"`
	AutomationID string         `json:"automation_id" validate:"required_if=Mode manual"`
	Context      map[string]any `json:"context"`
}

type APIHandlers struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	dispatcher  *workflow.Dispatcher
	scheduler   *workflow.DelayScheduler
	validator   *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	persistence persistence.Persistence,
	dispatcher *workflow.Dispatcher,
	scheduler *workflow.DelayScheduler,
) *APIHandlers {
	return &APIHandlers{
		logger:      logger.With("module", "web"),
		persistence: persistence,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		validator:   validator.New(),
	}
}

// Run triggers dispatch work on demand. The mode selects what runs:
// "events" drains unprocessed trigger events, "delays" resumes due
// delayed jobs, "all" (the default) does both, and "manual" starts a
// single automation directly with the supplied context.
func (h *APIHandlers) Run(c fiber.Ctx) error {
	req := RunRequest{Mode: ModeAll}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if req.Mode == "" {
		req.Mode = ModeAll
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	switch req.Mode {
	case ModeManual:
		runID, err := h.dispatcher.RunManual(c.Context(), req.AutomationID, req.Context)
		if err != nil {
			if persistence.IsAutomationNotFound(err) {
				return notFound(c, "Automation not found")
			}

			return h.runFailed(c, err)
		}

		return c.JSON(fiber.Map{"ok": true, "run_id": runID})
	case ModeEvents:
		if err := h.dispatcher.DispatchPass(c.Context()); err != nil {
			return h.runFailed(c, err)
		}
	case ModeDelays:
		if err := h.scheduler.RunDuePass(c.Context()); err != nil {
			return h.runFailed(c, err)
		}
	case ModeAll:
		if err := h.dispatcher.DispatchPass(c.Context()); err != nil {
			return h.runFailed(c, err)
		}

		if err := h.scheduler.RunDuePass(c.Context()); err != nil {
			return h.runFailed(c, err)
		}
	}

	return c.JSON(fiber.Map{"ok": true})
}

func (h *APIHandlers) runFailed(c fiber.Ctx, err error) error {
	h.logger.ErrorContext(c.Context(), "Run pass failed", "error", err)

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Automation runner is healthy"
	httpStatus := http.StatusOK

	repositoryCheck := "ok"
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Automation runner is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
