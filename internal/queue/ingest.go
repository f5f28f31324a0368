package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EHS-Labs/sage/backend/internal/util"
	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/graph"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	"github.com/EHS-Labs/sage/backend/pkg/store"

	"github.com/rabbitmq/amqp091-go"
)

// IngestMessage is the payload published to the ingest queue. The raw file
// is already in document storage when the message is sent; workers fetch
// it by path so the broker never carries document bytes.
type IngestMessage struct {
	FileName    string            `json:"file_name"`
	StoragePath string            `json:"storage_path"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PublishIngest stores nothing itself; it serializes the message and hands
// it to the ingest queue.
func PublishIngest(ch *amqp091.Channel, msg IngestMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding ingest message: %w", err)
	}
	return PublishFIFO(ch, IngestQueue, data)
}

// ProcessIngest handles one ingest message: fetch the stored file, run the
// pipeline, and report failure as an error so the delivery is rerouted to
// retry or the DLQ. A FAILED result counts as a handler error; the
// pipeline itself never retries, resubmission happens at this layer by
// redelivering the whole document.
func ProcessIngest(ctx context.Context, pipeline *graph.Pipeline, files store.DocumentStorage, body []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decoding ingest message: %w", err)
	}
	if msg.StoragePath == "" || msg.FileName == "" {
		return fmt.Errorf("ingest message missing file_name or storage_path")
	}

	var data []byte
	err := util.RetryErrWithContext(ctx, 3, func(ctx context.Context) error {
		var fetchErr error
		data, fetchErr = files.Get(ctx, msg.StoragePath)
		return fetchErr
	})
	if err != nil {
		return fmt.Errorf("fetching document %s: %w", msg.StoragePath, err)
	}

	result := pipeline.Ingest(ctx, graph.IngestRequest{
		FileName: msg.FileName,
		Data:     data,
		Metadata: msg.Metadata,
	})
	if result.Status == common.DocumentFailed {
		return fmt.Errorf("ingesting %s: %s", msg.FileName, result.Error)
	}

	logger.Info(
		"Document ingested from queue",
		"file", msg.FileName,
		"document", result.DocumentID,
		"relationships", result.RelationshipsCreated,
		"duration", result.ProcessingTime,
	)
	return nil
}
