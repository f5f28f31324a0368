package routes

import (
	"net/http"

	"github.com/EHS-Labs/sage/backend/internal/server/middleware"
	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	"github.com/EHS-Labs/sage/backend/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetEntityRelationshipsHandler returns the typed edges touching an
// entity. The direction query parameter accepts outgoing, incoming or
// both; the default is both.
func GetEntityRelationshipsHandler(c echo.Context) error {
	type getRelationshipsResponse struct {
		Message       string                `json:"message,omitempty"`
		Relationships []common.Relationship `json:"relationships"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, getRelationshipsResponse{
			Message: "Missing entity id",
		})
	}

	direction := store.DirectionBoth
	switch c.QueryParam("direction") {
	case "":
	case string(store.DirectionOutgoing):
		direction = store.DirectionOutgoing
	case string(store.DirectionIncoming):
		direction = store.DirectionIncoming
	case string(store.DirectionBoth):
	default:
		return c.JSON(http.StatusBadRequest, getRelationshipsResponse{
			Message: "Invalid direction, expected outgoing, incoming or both",
		})
	}

	app := c.(*middleware.AppContext).App
	rels, err := app.Graph.GetRelationships(c.Request().Context(), id, direction)
	if err != nil {
		logger.Error("Failed to load relationships", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, getRelationshipsResponse{
			Message: "Internal server error",
		})
	}
	if rels == nil {
		rels = []common.Relationship{}
	}

	return c.JSON(http.StatusOK, getRelationshipsResponse{Relationships: rels})
}
