package web

import "github.com/gofiber/fiber/v3"

// RegisterRoutes mounts every API endpoint on the app. Shared between the
// server binary and the handler tests.
func RegisterRoutes(app *fiber.App, handlers *APIHandlers) {
	app.Get("/health", handlers.HealthCheck)

	workflows := app.Group("/workflows")
	workflows.Get("/", handlers.GetWorkflows)
	workflows.Post("/", handlers.CreateWorkflow)
	workflows.Get("/stats", handlers.GetWorkflowStats)
	workflows.Get("/:id", handlers.GetWorkflow)
	workflows.Put("/:id", handlers.UpdateWorkflow)
	workflows.Delete("/:id", handlers.DeleteWorkflow)
	workflows.Patch("/:id/toggle", handlers.ToggleWorkflow)
	workflows.Post("/:id/trigger", handlers.TriggerWorkflow)

	instances := app.Group("/workflow-instances")
	instances.Get("/", handlers.GetInstances)
	instances.Post("/", handlers.CreateInstance)
	instances.Get("/:id", handlers.GetInstance)
	instances.Post("/:id/cancel", handlers.CancelInstance)

	tasks := app.Group("/scheduled-tasks")
	tasks.Get("/", handlers.GetTasks)
	tasks.Post("/", handlers.CreateTask)
	tasks.Get("/:id", handlers.GetTask)
	tasks.Put("/:id", handlers.UpdateTask)
	tasks.Delete("/:id", handlers.DeleteTask)
	tasks.Patch("/:id/toggle", handlers.ToggleTask)
	tasks.Get("/:id/executions", handlers.GetTaskExecutions)

	app.Post("/events", handlers.PublishEvent)
	app.Get("/actions", handlers.GetActionTypes)
}
