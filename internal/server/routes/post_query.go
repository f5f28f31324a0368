package routes

import (
	"net/http"

	"github.com/EHS-Labs/sage/backend/internal/server/middleware"
	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// QueryEntitiesHandler returns entities of one label matching all given
// properties.
func QueryEntitiesHandler(c echo.Context) error {
	type queryBody struct {
		Label      string         `json:"label" validate:"required"`
		Properties map[string]any `json:"properties"`
		Limit      int            `json:"limit"`
	}

	type queryResponse struct {
		Message  string           `json:"message,omitempty"`
		Entities []*common.Entity `json:"entities"`
	}

	data := new(queryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}
	if !common.IsKnownEntityType(common.EntityType(data.Label)) {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Unknown entity label " + data.Label,
		})
	}

	app := c.(*middleware.AppContext).App
	entities, err := app.Graph.QueryByPattern(c.Request().Context(), data.Label, data.Properties, data.Limit)
	if err != nil {
		logger.Error("Pattern query failed", "label", data.Label, "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}
	if entities == nil {
		entities = []*common.Entity{}
	}

	return c.JSON(http.StatusOK, queryResponse{Entities: entities})
}

// ExpandRelationshipsHandler returns the outgoing edges of a set of
// entities, optionally restricted to the given relationship types. Used to
// walk the graph outward from a query result.
func ExpandRelationshipsHandler(c echo.Context) error {
	type expandBody struct {
		EntityIDs []string `json:"entity_ids" validate:"required,min=1"`
		Types     []string `json:"types"`
	}

	type expandResponse struct {
		Message       string                `json:"message,omitempty"`
		Relationships []common.Relationship `json:"relationships"`
	}

	data := new(expandBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, expandResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, expandResponse{
			Message: "Invalid request body",
		})
	}

	types := make([]common.RelationshipType, 0, len(data.Types))
	for _, t := range data.Types {
		types = append(types, common.RelationshipType(t))
	}

	app := c.(*middleware.AppContext).App
	rels, err := app.Graph.ExpandRelationships(c.Request().Context(), data.EntityIDs, types)
	if err != nil {
		logger.Error("Relationship expansion failed", "err", err)
		return c.JSON(http.StatusInternalServerError, expandResponse{
			Message: "Internal server error",
		})
	}
	if rels == nil {
		rels = []common.Relationship{}
	}

	return c.JSON(http.StatusOK, expandResponse{Relationships: rels})
}
