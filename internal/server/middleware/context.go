package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/helmsman-ai/concierge/internal/config"
	"github.com/helmsman-ai/concierge/pkg/identity"
	"github.com/helmsman-ai/concierge/pkg/query"
	"github.com/helmsman-ai/concierge/pkg/store"
)

// App carries the shared dependencies every request handler needs.
type App struct {
	DBConn    *pgxpool.Pool
	Queue     *amqp091.Channel
	Store     store.Store
	Processor *query.Processor
	Resolver  *identity.Resolver
	Settings  config.Settings
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
