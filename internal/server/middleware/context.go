package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/EHS-Labs/sage/backend/pkg/graph"
	"github.com/EHS-Labs/sage/backend/pkg/index"
	"github.com/EHS-Labs/sage/backend/pkg/store"
)

// App bundles the shared dependencies every handler needs: the graph
// store, raw document storage, the ingest queue channel, the vector
// indexer and the in-process pipeline.
type App struct {
	Graph    store.GraphStore
	Files    store.DocumentStorage
	Queue    *amqp091.Channel
	Index    *index.Indexer
	Pipeline *graph.Pipeline
}

// AppContext wraps the echo context with the application dependencies.
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
