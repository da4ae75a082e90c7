package routes

import (
	"errors"
	"net/http"

	"github.com/helmsman-ai/concierge/internal/server/middleware"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/identity"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// ResolveIdentityHandler resolves a set of customer identifiers to an
// entity, creating a new one when nothing matches.
func ResolveIdentityHandler(c echo.Context) error {
	type resolveBody struct {
		Name               string `json:"name"`
		Email              string `json:"email" validate:"omitempty,email"`
		Phone              string `json:"phone"`
		Platform           string `json:"platform" validate:"required"`
		PlatformIdentifier string `json:"platform_identifier"`
		Context            string `json:"context"`
	}

	type resolveResponse struct {
		Message    string               `json:"message"`
		MatchFound bool                 `json:"match_found"`
		Entity     *common.Entity       `json:"entity,omitempty"`
		Link       *common.IdentityLink `json:"link,omitempty"`
		Confidence float64              `json:"confidence,omitempty"`
		Method     common.MatchMethod   `json:"method,omitempty"`
		Reasoning  string               `json:"reasoning,omitempty"`
	}

	data := new(resolveBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, resolveResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, resolveResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	resolution, err := app.Resolver.Resolve(ctx, identity.Query{
		Name:               data.Name,
		Email:              data.Email,
		Phone:              data.Phone,
		Platform:           data.Platform,
		PlatformIdentifier: data.PlatformIdentifier,
		Context:            data.Context,
	})
	if err != nil {
		if errors.Is(err, identity.ErrNoIdentifiers) {
			return c.JSON(http.StatusBadRequest, resolveResponse{
				Message: "At least one of name, email or phone is required",
			})
		}
		return c.JSON(http.StatusInternalServerError, resolveResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, resolveResponse{
		Message:    "Identity resolved",
		MatchFound: resolution.MatchFound,
		Entity:     &resolution.Entity,
		Link:       &resolution.Link,
		Confidence: resolution.Confidence,
		Method:     resolution.Method,
		Reasoning:  resolution.Reasoning,
	})
}
