package server

import (
	"github.com/EHS-Labs/sage/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Document routes
	apiRoutes.POST("/documents", routes.UploadDocumentsHandler)
	apiRoutes.GET("/documents/:id", routes.GetDocumentStatusHandler)

	// Entity routes
	apiRoutes.GET("/entities/:id", routes.GetEntityHandler)
	apiRoutes.GET("/entities/:id/relationships", routes.GetEntityRelationshipsHandler)

	// Query routes
	apiRoutes.POST("/query", routes.QueryEntitiesHandler)
	apiRoutes.POST("/query/expand", routes.ExpandRelationshipsHandler)
	apiRoutes.GET("/search", routes.SearchChunksHandler)
}
