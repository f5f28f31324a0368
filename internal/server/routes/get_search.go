package routes

import (
	"net/http"
	"strconv"

	"github.com/EHS-Labs/sage/backend/internal/server/middleware"
	"github.com/EHS-Labs/sage/backend/pkg/index"
	"github.com/EHS-Labs/sage/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SearchChunksHandler runs similarity search over indexed document chunks.
func SearchChunksHandler(c echo.Context) error {
	type searchResponse struct {
		Message string               `json:"message,omitempty"`
		Results []index.SearchResult `json:"results"`
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Missing query parameter q",
		})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	app := c.(*middleware.AppContext).App
	if app.Index == nil {
		return c.JSON(http.StatusServiceUnavailable, searchResponse{
			Message: "Search index not configured",
		})
	}

	results, err := app.Index.SearchSimilar(c.Request().Context(), query, limit)
	if err != nil {
		logger.Error("Chunk search failed", "err", err)
		return c.JSON(http.StatusInternalServerError, searchResponse{
			Message: "Internal server error",
		})
	}
	if results == nil {
		results = []index.SearchResult{}
	}

	return c.JSON(http.StatusOK, searchResponse{Results: results})
}
