package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EHS-Labs/sage/backend/internal/queue"
	"github.com/EHS-Labs/sage/backend/internal/storage"
	"github.com/EHS-Labs/sage/backend/internal/util"
	"github.com/EHS-Labs/sage/backend/pkg/ai"
	oai "github.com/EHS-Labs/sage/backend/pkg/ai/ollama"
	gai "github.com/EHS-Labs/sage/backend/pkg/ai/openai"
	"github.com/EHS-Labs/sage/backend/pkg/graph"
	"github.com/EHS-Labs/sage/backend/pkg/index"
	"github.com/EHS-Labs/sage/backend/pkg/loader"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	"github.com/EHS-Labs/sage/backend/pkg/logger/console"
	neostore "github.com/EHS-Labs/sage/backend/pkg/store/neo4j"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aiClient := newAIClient()

	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	files := storage.NewS3DocumentStorage(storage.NewS3DocumentStorageParams{
		Client: s3Client,
		Bucket: util.GetEnv("AWS_BUCKET"),
	})

	driver, err := neo4j.NewDriverWithContext(
		util.GetEnv("NEO4J_URI"),
		neo4j.BasicAuth(util.GetEnv("NEO4J_USER"), util.GetEnv("NEO4J_PASSWORD"), ""),
	)
	if err != nil {
		logger.Fatal("Failed to connect to Neo4j", "err", err)
	}
	defer driver.Close(ctx)

	graphStore := neostore.NewGraphDBStore(neostore.NewGraphDBStoreParams{
		Driver: driver,
	})
	if err := graphStore.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure graph schema", "err", err)
	}

	databaseURL := util.GetEnv("DATABASE_URL")
	if err := index.Migrate(databaseURL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pool.Close()

	pipeline := graph.NewPipeline(graph.NewPipelineParams{
		GraphStore:      graphStore,
		DocumentStorage: files,
		Processor:       loader.NewFileProcessor(),
		Extractor: graph.NewModelExtractor(graph.NewModelExtractorParams{
			Client: aiClient,
			Model:  util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
		}),
		Validator: graph.NewValidator(graph.NewValidatorParams{
			ConfidenceFloor: util.GetEnvNumeric("CONFIDENCE_FLOOR", 0),
		}),
		Indexer: index.NewIndexer(index.NewIndexerParams{
			Pool:   pool,
			Client: aiClient,
		}),
	})

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// A single consumer channel with prefetch=1 so one document is
	// processed at a time.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.IngestQueue,
		fmt.Sprintf("%s_consumer", queue.IngestQueue),
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.IngestQueue, "err", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Info("Message channel closed", "queue", queue.IngestQueue)
					return
				}
				handleMessage(ctx, pipeline, files, aiClient, consumerCh, msg)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleMessage(
	ctx context.Context,
	pipeline *graph.Pipeline,
	files *storage.S3DocumentStorage,
	aiClient ai.Client,
	ch *amqp.Channel,
	msg amqp.Delivery,
) {
	startTime := time.Now()
	logger.Info("Received message", "queue", queue.IngestQueue)

	processingErr := queue.ProcessIngest(ctx, pipeline, files, msg.Body)

	if processingErr != nil {
		logger.Error("Error processing message", "queue", queue.IngestQueue, "err", processingErr)
		queue.HandleProcessingError(ch, msg, queue.IngestQueue)
	} else {
		if err := msg.Ack(false); err != nil {
			logger.Error("Failed to ack message", "err", err)
		}
		logger.Info("Message processed successfully", "queue", queue.IngestQueue)
	}

	metrics := aiClient.GetMetrics()
	aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
	logger.Info(
		"AI Metrics",
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", formatDuration(aiDuration),
	)
	logger.Info("Processing time", "duration", formatDuration(time.Since(startTime)))
	logger.Info("Waiting for next message")
	aiClient.ResetMetrics()
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// newAIClient selects the extraction/embedding backend from AI_ADAPTER.
func newAIClient() ai.Client {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := oai.NewClient(oai.NewClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			EmbeddingDim:    int(util.GetEnvNumeric("AI_EMBED_DIM", 0)),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			APIKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 1)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return gai.NewClient(gai.NewClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			EmbeddingDim:    int(util.GetEnvNumeric("AI_EMBED_DIM", 0)),

			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
		})
	}
}
