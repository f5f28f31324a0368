package routes

import (
	"io"
	"net/http"

	"github.com/EHS-Labs/sage/backend/internal/queue"
	"github.com/EHS-Labs/sage/backend/internal/server/middleware"
	"github.com/EHS-Labs/sage/backend/pkg/graph"
	"github.com/EHS-Labs/sage/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// UploadDocumentsHandler accepts one or more files via multipart/form-data,
// stores them and enqueues one ingest message per file. With ?sync=true the
// pipeline runs inline instead and the full results are returned; intended
// for small documents and local use.
func UploadDocumentsHandler(c echo.Context) error {
	type acceptedFile struct {
		FileName    string `json:"file_name"`
		StoragePath string `json:"storage_path"`
	}

	type uploadResponse struct {
		Message  string               `json:"message"`
		Accepted []acceptedFile       `json:"accepted,omitempty"`
		Results  []graph.IngestResult `json:"results,omitempty"`
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "Invalid request body",
		})
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return c.JSON(http.StatusBadRequest, uploadResponse{
			Message: "No files provided",
		})
	}

	// Remaining form fields travel as document metadata.
	metadata := map[string]string{}
	for key, values := range form.Value {
		if len(values) > 0 {
			metadata[key] = values[0]
		}
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	sync := c.QueryParam("sync") == "true"

	var accepted []acceptedFile
	var results []graph.IngestResult
	for _, upload := range uploads {
		src, err := upload.Open()
		if err != nil {
			logger.Error("Failed to open upload", "file", upload.Filename, "err", err)
			return c.JSON(http.StatusBadRequest, uploadResponse{
				Message: "Could not read file " + upload.Filename,
			})
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			logger.Error("Failed to read upload", "file", upload.Filename, "err", err)
			return c.JSON(http.StatusBadRequest, uploadResponse{
				Message: "Could not read file " + upload.Filename,
			})
		}

		if sync {
			results = append(results, app.Pipeline.Ingest(ctx, graph.IngestRequest{
				FileName: upload.Filename,
				Data:     data,
				Metadata: metadata,
			}))
			continue
		}

		stored, err := app.Files.Store(ctx, upload.Filename, data)
		if err != nil {
			logger.Error("Failed to store upload", "file", upload.Filename, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Failed to store file " + upload.Filename,
			})
		}
		err = queue.PublishIngest(app.Queue, queue.IngestMessage{
			FileName:    upload.Filename,
			StoragePath: stored.Path,
			Metadata:    metadata,
		})
		if err != nil {
			logger.Error("Failed to enqueue document", "file", upload.Filename, "err", err)
			return c.JSON(http.StatusInternalServerError, uploadResponse{
				Message: "Failed to enqueue file " + upload.Filename,
			})
		}
		accepted = append(accepted, acceptedFile{
			FileName:    upload.Filename,
			StoragePath: stored.Path,
		})
	}

	if sync {
		return c.JSON(http.StatusOK, uploadResponse{
			Message: "Documents ingested",
			Results: results,
		})
	}
	return c.JSON(http.StatusAccepted, uploadResponse{
		Message:  "Documents queued for ingestion",
		Accepted: accepted,
	})
}
