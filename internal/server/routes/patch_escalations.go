package routes

import (
	"errors"
	"net/http"

	"github.com/helmsman-ai/concierge/internal/server/middleware"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/store"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// EditEscalationHandler updates an escalation's status and assignee.
// Resolved escalations cannot move back to pending or claimed.
func EditEscalationHandler(c echo.Context) error {
	type editEscalationBody struct {
		Status     string `json:"status" validate:"required,oneof=pending claimed resolved"`
		AssignedTo string `json:"assigned_to"`
	}

	type editEscalationResponse struct {
		Message    string             `json:"message"`
		Escalation *common.Escalation `json:"escalation,omitempty"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, editEscalationResponse{
			Message: "Missing escalation id",
		})
	}

	data := new(editEscalationBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, editEscalationResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, editEscalationResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	current, err := app.Store.GetEscalation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, editEscalationResponse{
				Message: "Escalation not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, editEscalationResponse{
			Message: "Internal server error",
		})
	}

	status := common.EscalationStatus(data.Status)
	if current.Status == common.EscalationResolved && status != common.EscalationResolved {
		return c.JSON(http.StatusConflict, editEscalationResponse{
			Message: "Escalation is already resolved",
		})
	}

	escalation, err := app.Store.UpdateEscalationStatus(ctx, id, status, data.AssignedTo)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, editEscalationResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, editEscalationResponse{
		Message:    "Escalation updated",
		Escalation: &escalation,
	})
}
