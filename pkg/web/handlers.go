// Package web provides the HTTP handlers for workflow management,
// trigger notification and queue operations.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/funnelworks/cadence/pkg/engine"
	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/persistence"
)

const defaultFailedEntriesLimit = 100

// APIHandlers serves the engine over HTTP.
type APIHandlers struct {
	service *engine.Service
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(service *engine.Service) *APIHandlers {
	return &APIHandlers{service: service}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.service.Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.service.WorkflowByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid workflow document: "+err.Error())
	}

	if err := h.service.SaveWorkflow(c.Context(), &workflow); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	existing, err := h.service.WorkflowByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid workflow document: "+err.Error())
	}

	workflow.ID = existing.ID
	workflow.CreatedAt = existing.CreatedAt

	if err := h.service.SaveWorkflow(c.Context(), &workflow); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.service.DeleteWorkflow(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ImportPreset(c fiber.Ctx) error {
	workflow, err := h.service.ImportPreset(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

// notifyRequest is the trigger notification body.
type notifyRequest struct {
	TriggerID string         `json:"trigger_id"`
	SubjectID string         `json:"subject_id"`
	Data      map[string]any `json:"data,omitempty"`
}

func (h *APIHandlers) Notify(c fiber.Ctx) error {
	var req notifyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid notification document: "+err.Error())
	}

	if req.TriggerID == "" {
		return badRequest(c, "trigger_id is required")
	}

	trigger := models.TriggerContext{SubjectID: req.SubjectID, Data: req.Data}

	if err := h.service.NotifyTrigger(c.Context(), req.TriggerID, trigger); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetFailedEntries(c fiber.Ctx) error {
	limit := defaultFailedEntriesLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	entries, err := h.service.FailedEntries(c.Context(), limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func (h *APIHandlers) PurgeFailedEntries(c fiber.Ctx) error {
	beforeStr := c.Query("before")
	if beforeStr == "" {
		return badRequest(c, "before query parameter is required")
	}

	before, err := time.Parse(time.RFC3339, beforeStr)
	if err != nil {
		return badRequest(c, "Invalid before timestamp: "+err.Error())
	}

	purged, err := h.service.PurgeFailedBefore(c.Context(), before)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"purged": purged})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.service.HealthCheck(c.Context()); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
