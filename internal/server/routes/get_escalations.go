package routes

import (
	"net/http"
	"strconv"

	"github.com/helmsman-ai/concierge/internal/server/middleware"
	"github.com/helmsman-ai/concierge/pkg/common"

	"github.com/labstack/echo/v4"
)

// GetEscalationsHandler lists escalations, optionally filtered by
// status. The limit query parameter caps the result size, 50 by
// default.
func GetEscalationsHandler(c echo.Context) error {
	type getEscalationsResponse struct {
		Message     string              `json:"message"`
		Escalations []common.Escalation `json:"escalations,omitempty"`
	}

	status := common.EscalationStatus(c.QueryParam("status"))
	switch status {
	case "", common.EscalationPending, common.EscalationClaimed, common.EscalationResolved:
	default:
		return c.JSON(http.StatusBadRequest, getEscalationsResponse{
			Message: "Invalid status filter",
		})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			return c.JSON(http.StatusBadRequest, getEscalationsResponse{
				Message: "Invalid limit",
			})
		}
		limit = parsed
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	escalations, err := app.Store.ListEscalations(ctx, status, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, getEscalationsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getEscalationsResponse{
		Message:     "OK",
		Escalations: escalations,
	})
}
