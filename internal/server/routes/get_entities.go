package routes

import (
	"errors"
	"net/http"

	"github.com/EHS-Labs/sage/backend/internal/server/middleware"
	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	"github.com/EHS-Labs/sage/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetEntityHandler returns one entity with its provenance records.
func GetEntityHandler(c echo.Context) error {
	type getEntityResponse struct {
		Message string         `json:"message,omitempty"`
		Entity  *common.Entity `json:"entity,omitempty"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, getEntityResponse{
			Message: "Missing entity id",
		})
	}

	app := c.(*middleware.AppContext).App
	entity, err := app.Graph.GetEntity(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, getEntityResponse{
				Message: "Entity not found",
			})
		}
		logger.Error("Failed to load entity", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, getEntityResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getEntityResponse{Entity: entity})
}
