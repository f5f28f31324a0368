package index

import (
	"context"
	"fmt"

	"github.com/EHS-Labs/sage/backend/pkg/ai"
	"github.com/EHS-Labs/sage/backend/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Indexer chunks document text, embeds each chunk and stores the vectors
// in Postgres. It runs as the best-effort final step of ingestion; the
// knowledge graph stays authoritative when indexing fails.
type Indexer struct {
	pool      *pgxpool.Pool
	client    ai.Client
	encoder   string
	maxTokens int
}

// NewIndexerParams configures an Indexer.
type NewIndexerParams struct {
	Pool      *pgxpool.Pool
	Client    ai.Client
	Encoder   string
	MaxTokens int
}

// NewIndexer creates an Indexer.
func NewIndexer(params NewIndexerParams) *Indexer {
	encoder := params.Encoder
	if encoder == "" {
		encoder = DefaultEncoder
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Indexer{
		pool:      params.Pool,
		client:    params.Client,
		encoder:   encoder,
		maxTokens: maxTokens,
	}
}

// IndexDocument replaces the chunk rows for a document with freshly
// embedded chunks of the given text.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID, text string) error {
	chunks, err := SplitText(documentID, text, ix.encoder, ix.maxTokens)
	if err != nil {
		return fmt.Errorf("chunking document %s: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	embeddings := make([]pgvector.Vector, len(chunks))
	for i, chunk := range chunks {
		vec, err := ix.client.GenerateEmbedding(ctx, []byte(chunk.Text))
		if err != nil {
			return fmt.Errorf("embedding chunk %d of document %s: %w", i, documentID, err)
		}
		embeddings[i] = pgvector.NewVector(vec)
	}

	tx, err := ix.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting index transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clearing chunks for document %s: %w", documentID, err)
	}

	batch := &pgx.Batch{}
	for i, chunk := range chunks {
		batch.Queue(
			`INSERT INTO document_chunks (id, document_id, position, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			chunk.ID, chunk.DocumentID, chunk.Position, chunk.Text, embeddings[i],
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chunks for document %s: %w", documentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks for document %s: %w", documentID, err)
	}

	logger.Debug("[Index] Document indexed", "document", documentID, "chunks", len(chunks))
	return nil
}

// SearchResult is one chunk returned by similarity search.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Position   int     `json:"position"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// SearchSimilar embeds the query and returns the closest chunks by cosine
// distance. Used by the read-side search endpoint, never by ingestion.
func (ix *Indexer) SearchSimilar(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	vec, err := ix.client.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := ix.pool.Query(ctx,
		`SELECT id, document_id, position, content, 1 - (embedding <=> $1) AS score
		 FROM document_chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(vec), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Position, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
