package server

import (
	"github.com/helmsman-ai/concierge/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api/v1")

	// Chat routes
	apiRoutes.POST("/chat", routes.ChatHandler)

	// Identity routes
	apiRoutes.POST("/identity/resolve", routes.ResolveIdentityHandler)
	apiRoutes.GET("/identity/entities/:id", routes.GetEntityHandler)

	// Escalation routes
	apiRoutes.GET("/escalations", routes.GetEscalationsHandler)
	apiRoutes.PATCH("/escalations/:id", routes.EditEscalationHandler)

	// Analytics routes
	apiRoutes.GET("/analytics/summary", routes.GetAnalyticsSummaryHandler)
}
