// Package web exposes the orchestrator over a REST API: event emission,
// rule and template registration, workflow control and state queries.
package web

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/modernmen/pulse/pkg/models"
	"github.com/modernmen/pulse/pkg/orchestrator"
)

type APIHandlers struct {
	orchestrator *orchestrator.Orchestrator
}

func NewAPIHandlers(o *orchestrator.Orchestrator) *APIHandlers {
	return &APIHandlers{orchestrator: o}
}

// NewApp builds a fiber application with every route registered.
func NewApp(o *orchestrator.Orchestrator) *fiber.App {
	app := fiber.New(fiber.Config{AppName: "pulse"})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	handlers := NewAPIHandlers(o)
	handlers.Register(app)

	return app
}

func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.Health)

	app.Post("/events", h.EmitEvent)
	app.Get("/events", h.RecentEvents)

	app.Get("/rules", h.GetRules)
	app.Post("/rules", h.CreateRule)
	app.Get("/rules/:id", h.GetRule)
	app.Post("/rules/:id/enable", h.EnableRule)
	app.Post("/rules/:id/disable", h.DisableRule)

	app.Get("/templates", h.GetTemplates)
	app.Post("/templates", h.CreateTemplate)

	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.StartWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Post("/:id/cancel", h.CancelWorkflow)
	w.Post("/:id/steps/:stepId/advance", h.AdvanceStep)

	app.Get("/actions", h.GetActions)
	app.Get("/state", h.GetState)
}

func (h *APIHandlers) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type emitEventRequest struct {
	Type      models.EventType `json:"type"`
	Category  string           `json:"category"`
	Action    string           `json:"action"`
	SubjectID string           `json:"subject_id"`
	Payload   map[string]any   `json:"payload"`
}

// EmitEvent is fire-and-forget: a well-formed event is always accepted,
// whatever rules and workflows then do with it.
func (h *APIHandlers) EmitEvent(c fiber.Ctx) error {
	var req emitEventRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if req.Type == "" || req.Category == "" || req.Action == "" {
		return badRequest(c, "type, category and action are required")
	}

	event := models.NewSystemEvent(req.Type, req.Category, req.Action, req.Payload)
	event.SubjectID = req.SubjectID
	event.Source = "api"

	h.orchestrator.Emit(c.Context(), event)

	return c.Status(fiber.StatusAccepted).JSON(event)
}

func (h *APIHandlers) RecentEvents(c fiber.Ctx) error {
	limit := 50

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	events := h.orchestrator.RecentEvents(limit)

	return c.JSON(fiber.Map{
		"events": events,
		"count":  len(events),
	})
}

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"rules": h.orchestrator.Rules()})
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var rule models.OrchestrationRule
	if err := c.Bind().Body(&rule); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.orchestrator.RegisterRule(rule); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, ok := h.orchestrator.Rule(c.Params("id"))
	if !ok {
		return notFound(c, "rule not found")
	}

	return c.JSON(rule)
}

func (h *APIHandlers) EnableRule(c fiber.Ctx) error {
	return h.setRuleEnabled(c, true)
}

func (h *APIHandlers) DisableRule(c fiber.Ctx) error {
	return h.setRuleEnabled(c, false)
}

func (h *APIHandlers) setRuleEnabled(c fiber.Ctx, enabled bool) error {
	if err := h.orchestrator.SetRuleEnabled(c.Params("id"), enabled); err != nil {
		return handleEngineError(c, err)
	}

	rule, _ := h.orchestrator.Rule(c.Params("id"))

	return c.JSON(rule)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"templates": h.orchestrator.Templates()})
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var tpl models.WorkflowTemplate
	if err := c.Bind().Body(&tpl); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.orchestrator.RegisterTemplate(tpl); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tpl)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	var workflows []models.WorkflowExecution

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)

		for _, wf := range h.orchestrator.Workflows() {
			if wf.Status == status {
				workflows = append(workflows, wf)
			}
		}
	} else {
		workflows = h.orchestrator.Workflows()
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

type startWorkflowRequest struct {
	Name    string                 `json:"name"`
	Type    string                 `json:"type"`
	Trigger models.WorkflowTrigger `json:"trigger"`
	Context map[string]any         `json:"context"`
}

func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	var req startWorkflowRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if req.Type == "" {
		return badRequest(c, "type is required")
	}

	if req.Name == "" {
		req.Name = req.Type
	}

	id, err := h.orchestrator.StartWorkflow(c.Context(), req.Name, req.Type, req.Trigger, req.Context)
	if err != nil {
		return handleEngineError(c, err)
	}

	wf, err := h.orchestrator.Workflow(id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(wf)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	wf, err := h.orchestrator.Workflow(c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(wf)
}

type cancelWorkflowRequest struct {
	Reason string `json:"reason"`
}

func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	var req cancelWorkflowRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.orchestrator.CancelWorkflow(c.Context(), c.Params("id"), req.Reason); err != nil {
		return handleEngineError(c, err)
	}

	wf, err := h.orchestrator.Workflow(c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(wf)
}

type advanceStepRequest struct {
	Result map[string]any `json:"result"`
}

func (h *APIHandlers) AdvanceStep(c fiber.Ctx) error {
	var req advanceStepRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err := h.orchestrator.AdvanceWorkflowStep(c.Context(), c.Params("id"), c.Params("stepId"), req.Result)
	if err != nil {
		return handleEngineError(c, err)
	}

	wf, err := h.orchestrator.Workflow(c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"actions": h.orchestrator.AvailableActions()})
}

func (h *APIHandlers) GetState(c fiber.Ctx) error {
	return c.JSON(h.orchestrator.GlobalState())
}
