package routes

import (
	"net/http"

	"github.com/helmsman-ai/concierge/internal/server/middleware"
	"github.com/helmsman-ai/concierge/pkg/query"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// ChatHandler runs one customer message through the support pipeline
// and returns the generated response with its confidence breakdown.
func ChatHandler(c echo.Context) error {
	type chatBody struct {
		Message            string `json:"message" validate:"required"`
		Name               string `json:"name"`
		Email              string `json:"email" validate:"omitempty,email"`
		Phone              string `json:"phone"`
		Platform           string `json:"platform" validate:"required"`
		PlatformIdentifier string `json:"platform_identifier"`
		ConversationID     string `json:"conversation_id"`
	}

	type errorResponse struct {
		Message string `json:"message"`
	}

	data := new(chatBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	result := app.Processor.Process(ctx, query.Request{
		Message:            data.Message,
		Name:               data.Name,
		Email:              data.Email,
		Phone:              data.Phone,
		Platform:           data.Platform,
		PlatformIdentifier: data.PlatformIdentifier,
		ConversationID:     data.ConversationID,
	})

	return c.JSON(http.StatusOK, result)
}
