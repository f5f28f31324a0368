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

// GetDocumentStatusHandler reports where a document stands in the
// ingestion state machine.
func GetDocumentStatusHandler(c echo.Context) error {
	type documentStatusResponse struct {
		Message  string `json:"message,omitempty"`
		ID       string `json:"id,omitempty"`
		FileName string `json:"file_name,omitempty"`
		Status   string `json:"status,omitempty"`
		Error    string `json:"error,omitempty"`
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, documentStatusResponse{
			Message: "Missing document id",
		})
	}

	app := c.(*middleware.AppContext).App
	entity, err := app.Graph.GetEntity(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, documentStatusResponse{
				Message: "Document not found",
			})
		}
		logger.Error("Failed to load document", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, documentStatusResponse{
			Message: "Internal server error",
		})
	}
	if entity.Type != common.EntityDocument {
		return c.JSON(http.StatusNotFound, documentStatusResponse{
			Message: "Document not found",
		})
	}

	status, _ := entity.Properties["status"].(string)
	errMessage, _ := entity.Properties["error"].(string)
	fileName, _ := entity.Properties["fileName"].(string)

	return c.JSON(http.StatusOK, documentStatusResponse{
		ID:       entity.ID,
		FileName: fileName,
		Status:   status,
		Error:    errMessage,
	})
}
