package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/orchonhq/orchon/pkg/eventbus"
	"github.com/orchonhq/orchon/pkg/events"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/registry"
	"github.com/orchonhq/orchon/pkg/services"
)

type APIHandlers struct {
	workflowService *services.Workflow
	instanceService *services.Instance
	taskService     *services.Task
	eventBus        eventbus.EventBus
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	instanceService *services.Instance,
	taskService *services.Task,
	validator *validator.Validate,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		instanceService: instanceService,
		taskService:     taskService,
		eventBus:        eventBus,
		validator:       validator,
		registry:        reg,
	}
}

// success wraps data in the response envelope shared by every endpoint.
func success(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Workflow endpoints

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	opts, err := parseListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	workflows, err := h.workflowService.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, workflows)
}

func (h *APIHandlers) GetWorkflowStats(c fiber.Ctx) error {
	stats, err := h.workflowService.Stats(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, stats)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.WorkflowDefinition{
		Name:              req.Name,
		Description:       req.Description,
		Status:            models.WorkflowStatus(req.Status),
		Triggers:          req.Triggers,
		Actions:           req.Actions,
		DefaultMaxRetries: req.DefaultMaxRetries,
	}

	if err := h.workflowService.Create(c.Context(), workflow); err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusCreated, workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.WorkflowDefinition{
		ID:                c.Params("id"),
		Name:              req.Name,
		Description:       req.Description,
		Status:            models.WorkflowStatus(req.Status),
		Triggers:          req.Triggers,
		Actions:           req.Actions,
		DefaultMaxRetries: req.DefaultMaxRetries,
		Version:           req.Version,
	}

	if err := h.workflowService.Update(c.Context(), workflow); err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, workflow)
}

func (h *APIHandlers) ToggleWorkflow(c fiber.Ctx) error {
	var req ToggleRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	workflow, err := h.workflowService.Toggle(c.Context(), c.Params("id"), req.IsEnabled)
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	force := c.Query("force") == "true"

	if err := h.workflowService.Delete(c.Context(), c.Params("id"), force); err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

// TriggerWorkflow starts a workflow manually. The response carries the
// pending instance; the run itself happens asynchronously.
func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	var req TriggerWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	instance, err := h.instanceService.Trigger(c.Context(), c.Params("id"), req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusAccepted, instance)
}

// Instance endpoints

// CreateInstance starts a workflow through the instances collection; the
// body names the workflow and carries optional trigger data. The run itself
// happens asynchronously.
func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	var req CreateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.instanceService.Trigger(c.Context(), req.WorkflowID, req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusCreated, instance)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	opts := persistence.InstanceListOptions{
		WorkflowID: c.Query("workflow_id"),
	}

	var err error

	opts.Page, opts.Limit, err = parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if raw := c.Query("status"); raw != "" {
		status := models.InstanceStatus(raw)
		opts.Status = &status
	}

	instances, err := h.instanceService.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, instances)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.instanceService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, instance)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	if err := h.instanceService.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, fiber.Map{"cancelled": true})
}

// Event intake

// PublishEvent pushes an external domain event onto the bus. Trigger
// matching and instance creation happen in the dispatcher, so the API
// acknowledges the event before any workflow starts.
func (h *APIHandlers) PublishEvent(c fiber.Ctx) error {
	var req PublishEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.ExternalEvent{
		BaseEvent: events.BaseEvent{
			ID:        h.eventBus.GenerateID(),
			Type:      events.ExternalEventReceived,
			Timestamp: time.Now().UTC(),
		},
		EventType: req.EventType,
		Payload:   req.Payload,
	}

	if err := h.eventBus.Publish(c.Context(), event.ID, event); err != nil {
		return internalError(c, err)
	}

	return success(c, fiber.StatusAccepted, fiber.Map{"event_id": event.ID})
}

// Scheduled task endpoints

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	opts, err := parseListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	tasks, err := h.taskService.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, tasks)
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.taskService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, task)
}

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var req CreateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	task := &models.ScheduledTask{
		TaskName:       req.TaskName,
		TaskType:       models.ScheduledTaskType(req.TaskType),
		CronExpression: req.CronExpression,
		IsEnabled:      enabled,
		MaxRetries:     req.MaxRetries,
		WorkflowID:     req.WorkflowID,
		Action:         req.Action,
	}

	if err := h.taskService.Create(c.Context(), task); err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusCreated, task)
}

func (h *APIHandlers) UpdateTask(c fiber.Ctx) error {
	var req UpdateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	task := &models.ScheduledTask{
		ID:             c.Params("id"),
		TaskName:       req.TaskName,
		TaskType:       models.ScheduledTaskType(req.TaskType),
		CronExpression: req.CronExpression,
		IsEnabled:      req.IsEnabled,
		MaxRetries:     req.MaxRetries,
		WorkflowID:     req.WorkflowID,
		Action:         req.Action,
		Version:        req.Version,
	}

	if err := h.taskService.Update(c.Context(), task); err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, task)
}

func (h *APIHandlers) ToggleTask(c fiber.Ctx) error {
	var req ToggleRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	task, err := h.taskService.Toggle(c.Context(), c.Params("id"), req.IsEnabled)
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, task)
}

func (h *APIHandlers) DeleteTask(c fiber.Ctx) error {
	if err := h.taskService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

func (h *APIHandlers) GetTaskExecutions(c fiber.Ctx) error {
	opts, err := parseListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.taskService.Executions(c.Context(), c.Params("id"), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return success(c, fiber.StatusOK, executions)
}

// Registry endpoints

func (h *APIHandlers) GetActionTypes(c fiber.Ctx) error {
	types := make([]ActionTypeResponse, 0)

	for _, factory := range h.registry.ActionFactories() {
		types = append(types, ActionTypeResponse{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return success(c, fiber.StatusOK, types)
}

func parseListOptions(c fiber.Ctx) (persistence.ListOptions, error) {
	opts := persistence.ListOptions{
		Search: c.Query("search"),
	}

	var err error

	opts.Page, opts.Limit, err = parsePagination(c)
	if err != nil {
		return opts, err
	}

	if raw := c.Query("status"); raw != "" {
		status := models.WorkflowStatus(raw)
		opts.Status = &status
	}

	return opts, nil
}

func parsePagination(c fiber.Ctx) (page, limit int, err error) {
	if raw := c.Query("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			return 0, 0, err
		}
	}

	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return 0, 0, err
		}
	}

	return page, limit, nil
}
