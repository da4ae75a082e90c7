package routes

import (
	"net/http"
	"time"

	"github.com/helmsman-ai/concierge/internal/server/middleware"
	"github.com/helmsman-ai/concierge/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetAnalyticsSummaryHandler aggregates pipeline analytics since the
// given RFC 3339 timestamp, defaulting to the last 24 hours.
func GetAnalyticsSummaryHandler(c echo.Context) error {
	type analyticsResponse struct {
		Message string                  `json:"message"`
		Since   time.Time               `json:"since,omitempty"`
		Summary *store.AnalyticsSummary `json:"summary,omitempty"`
	}

	since := time.Now().Add(-24 * time.Hour)
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, analyticsResponse{
				Message: "Invalid since timestamp, expected RFC 3339",
			})
		}
		since = parsed
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	summary, err := app.Store.AnalyticsSummary(ctx, since)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, analyticsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, analyticsResponse{
		Message: "OK",
		Since:   since,
		Summary: &summary,
	})
}
