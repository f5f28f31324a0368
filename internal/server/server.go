package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EHS-Labs/sage/backend/internal/queue"
	mid "github.com/EHS-Labs/sage/backend/internal/server/middleware"
	"github.com/EHS-Labs/sage/backend/internal/storage"
	"github.com/EHS-Labs/sage/backend/internal/util"
	"github.com/EHS-Labs/sage/backend/pkg/ai"
	oai "github.com/EHS-Labs/sage/backend/pkg/ai/ollama"
	gai "github.com/EHS-Labs/sage/backend/pkg/ai/openai"
	"github.com/EHS-Labs/sage/backend/pkg/graph"
	"github.com/EHS-Labs/sage/backend/pkg/index"
	"github.com/EHS-Labs/sage/backend/pkg/loader"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	neostore "github.com/EHS-Labs/sage/backend/pkg/store/neo4j"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer pool.Close()

	aiClient := newAIClient()

	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	files := storage.NewS3DocumentStorage(storage.NewS3DocumentStorageParams{
		Client: s3Client,
		Bucket: util.GetEnv("AWS_BUCKET"),
	})

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	indexer := index.NewIndexer(index.NewIndexerParams{
		Pool:   pool,
		Client: aiClient,
	})

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
		Indexer: indexer,
	})

	app := &mid.App{
		Graph:    graphStore,
		Files:    files,
		Queue:    ch,
		Index:    indexer,
		Pipeline: pipeline,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1G"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
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
