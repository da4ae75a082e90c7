package routes

import (
	"errors"
	"net/http"

	"github.com/helmsman-ai/concierge/internal/server/middleware"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetEntityHandler returns an entity profile with its platform links.
func GetEntityHandler(c echo.Context) error {
	type getEntityResponse struct {
		Message string                `json:"message"`
		Entity  *common.Entity        `json:"entity,omitempty"`
		Links   []common.IdentityLink `json:"links,omitempty"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, getEntityResponse{
			Message: "Missing entity id",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	entity, err := app.Store.GetEntity(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getEntityResponse{
				Message: "Entity not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, getEntityResponse{
			Message: "Internal server error",
		})
	}

	links, err := app.Store.ListLinksByEntity(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, getEntityResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getEntityResponse{
		Message: "OK",
		Entity:  &entity,
		Links:   links,
	})
}
