// handlers/admin_routes.go
package handlers

import (
	"campaign-engine-system/middleware"
	"campaign-engine-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App,
	eventService *services.EventService,
	raffleService *services.RaffleService,
	metricsService *services.MetricsService,
) {
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.AdminOnlyMiddleware())

	// Event catalog
	admin.Post("/events", eventService.CreateEvent)
	admin.Get("/events/:date", eventService.GetEvent)
	admin.Patch("/events/:date", eventService.UpdateEventStatus)

	// Raffles (draw is the privileged operation)
	admin.Post("/raffles", raffleService.CreateRaffle)
	admin.Get("/raffles/:code", raffleService.GetRaffle)
	admin.Post("/raffles/:code/draw", raffleService.Draw)

	// Observability
	admin.Get("/campaign/metrics/:date", metricsService.GetDailyMetrics)
	admin.Get("/campaign/audit", metricsService.GetAuditLog)
}
