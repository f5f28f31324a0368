package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/loader"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	"github.com/EHS-Labs/sage/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Indexer is the best-effort vector-layer collaborator. Its failures are
// logged and swallowed; the graph is complete without it.
type Indexer interface {
	IndexDocument(ctx context.Context, documentID, text string) error
}

// IngestRequest is one document submitted for ingestion.
type IngestRequest struct {
	FileName string
	Data     []byte
	Metadata map[string]string
}

// IngestResult is the outcome of one ingestion. Status is always set;
// Error carries a human-readable message when Status is FAILED.
type IngestResult struct {
	DocumentID           string                    `json:"document_id"`
	Status               common.DocumentStatus     `json:"status"`
	EntitiesCreated      map[common.EntityType]int `json:"entities_created"`
	RelationshipsCreated int                       `json:"relationships_created"`
	ProcessingTime       time.Duration             `json:"processing_time"`
	Error                string                    `json:"error,omitempty"`
}

// Pipeline drives one document through storage, processing, extraction,
// validation, resolution and relationship creation. Execution within one
// document is strictly sequential; concurrency across documents belongs to
// the caller, each call using its own graph sessions.
type Pipeline struct {
	graph     store.GraphStore
	files     store.DocumentStorage
	processor loader.Processor
	extractor Extractor
	validator *Validator
	resolver  *Resolver
	indexer   Indexer
}

// NewPipelineParams configures a Pipeline. Indexer may be nil, which
// disables the vector step.
type NewPipelineParams struct {
	GraphStore      store.GraphStore
	DocumentStorage store.DocumentStorage
	Processor       loader.Processor
	Extractor       Extractor
	Validator       *Validator
	Indexer         Indexer
}

// NewPipeline creates a Pipeline.
func NewPipeline(params NewPipelineParams) *Pipeline {
	return &Pipeline{
		graph:     params.GraphStore,
		files:     params.DocumentStorage,
		processor: params.Processor,
		extractor: params.Extractor,
		validator: params.Validator,
		resolver:  NewResolver(params.GraphStore),
		indexer:   params.Indexer,
	}
}

// Ingest runs the full state machine for one document. It never panics and
// never returns an error: every failure is reported through the result,
// and the Document node (once it exists) is left in FAILED with the
// message recorded. There is no retry and no rollback of entities already
// committed when a later step fails.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (result IngestResult) {
	started := time.Now()
	result = IngestResult{
		Status:          common.DocumentFailed,
		EntitiesCreated: map[common.EntityType]int{},
	}
	defer func() {
		result.ProcessingTime = time.Since(started)
		if r := recover(); r != nil {
			logger.Error("[Graph][Pipeline] Recovered from panic", "file", req.FileName, "panic", r)
			result = p.fail(ctx, result, fmt.Errorf("internal error: %v", r))
		}
	}()

	// Step 1: store the raw file and create the Document node.
	stored, err := p.files.Store(ctx, req.FileName, req.Data)
	if err != nil {
		result.Error = fmt.Sprintf("storing document: %v", err)
		return result
	}

	existing, err := p.graph.FindDuplicateEntity(ctx, common.EntityDocument, map[string]any{"contentHash": stored.ContentHash})
	if err != nil {
		result.Error = err.Error()
		return result
	}
	var docID string
	if existing != nil {
		if documentStatus(existing) == common.DocumentProcessed {
			logger.Info("[Graph][Pipeline] Document already ingested", "file", req.FileName, "id", existing.ID)
			result.DocumentID = existing.ID
			result.Status = common.DocumentProcessed
			return result
		}
		// A PENDING or FAILED node for these bytes already exists, typically
		// from an earlier ingestion that died. Resume on it; one content hash
		// maps to exactly one Document node.
		logger.Info("[Graph][Pipeline] Reprocessing document", "file", req.FileName, "id", existing.ID)
		docID = existing.ID
	} else {
		docID, err = p.createDocument(ctx, req.FileName, stored)
		if err != nil {
			result.Error = err.Error()
			return result
		}
	}
	result.DocumentID = docID

	// Step 2: PENDING (or FAILED, when reprocessing) -> PROCESSING. The
	// transition clears any recorded error.
	if err := p.graph.SetDocumentStatus(ctx, docID, common.DocumentProcessing, ""); err != nil {
		return p.fail(ctx, result, err)
	}

	// Step 3: plain text.
	processed, err := p.processor.ProcessFile(ctx, req.FileName, req.Data)
	if err != nil {
		return p.fail(ctx, result, err)
	}

	// Step 4: candidates.
	extracted, err := p.extractor.Extract(ctx, ExtractionInput{
		DocumentType: processed.DetectedType,
		Content:      processed.PlainText,
		Metadata:     mergeMetadata(processed.Metadata, req.Metadata),
	})
	if err != nil {
		return p.fail(ctx, result, err)
	}

	// Step 5: the gate. A single bad candidate fails the whole document
	// before anything is written.
	if err := p.validator.Validate(extracted.Entities, extracted.Relationships); err != nil {
		return p.fail(ctx, result, err)
	}

	// Step 6: resolve entities in order, building the endpoint map.
	resolved := make(map[common.BusinessKey]string, len(extracted.Entities))
	var resolvedEntities []resolvedEntity
	for _, candidate := range extracted.Entities {
		key, err := common.BusinessKeyFor(candidate.EntityType, candidate.Properties)
		if err != nil {
			return p.fail(ctx, result, err)
		}
		resolution, err := p.resolver.Resolve(ctx, candidate, docID, extracted.ModelUsed)
		if err != nil {
			return p.fail(ctx, result, err)
		}
		resolved[key] = resolution.EntityID
		resolvedEntities = append(resolvedEntities, resolvedEntity{
			Type:   candidate.EntityType,
			ID:     resolution.EntityID,
			Action: resolution.Action,
		})
		if resolution.Action != ActionFoundIdentical {
			result.EntitiesCreated[candidate.EntityType]++
		}
	}

	// Step 7: relationships. Unresolved endpoints are skipped, not fatal.
	for _, rel := range extracted.Relationships {
		fromID, fromOK := resolved[common.BusinessKey{Type: rel.From.Type, Key: rel.From.Key}]
		toID, toOK := resolved[common.BusinessKey{Type: rel.To.Type, Key: rel.To.Key}]
		if !fromOK || !toOK {
			logger.Debug("[Graph][Pipeline] Skipping relationship with unresolved endpoint",
				"type", rel.Type, "from", rel.From.Key, "to", rel.To.Key)
			continue
		}
		if _, err := p.graph.CreateRelationship(ctx, store.CreateRelationshipParams{
			FromID:      fromID,
			ToID:        toID,
			Type:        rel.Type,
			Confidence:  rel.Confidence,
			Locator:     rel.Locator,
			DocumentID:  docID,
			ExtractedBy: extracted.ModelUsed,
			Properties:  rel.Properties,
		}); err != nil {
			return p.fail(ctx, result, err)
		}
		result.RelationshipsCreated++
	}

	// Step 8: structurally-implied edges, true by construction.
	if err := p.graph.CreateSimpleRelationships(ctx, impliedRelationships(docID, resolvedEntities)); err != nil {
		return p.fail(ctx, result, err)
	}

	// Step 9: PROCESSED.
	if err := p.graph.SetDocumentStatus(ctx, docID, common.DocumentProcessed, ""); err != nil {
		return p.fail(ctx, result, err)
	}
	result.Status = common.DocumentProcessed

	// Step 10: best-effort vector layer. The graph is already the complete
	// source of truth; an indexing failure must not revert PROCESSED.
	if p.indexer != nil {
		if err := p.indexer.IndexDocument(ctx, docID, processed.PlainText); err != nil {
			logger.Warn("[Graph][Pipeline] Document indexing failed", "document", docID, "error", err)
		}
	}

	logger.Info("[Graph][Pipeline] Document ingested",
		"file", req.FileName, "document", docID,
		"entities", len(resolvedEntities), "relationships", result.RelationshipsCreated,
		"duration", time.Since(started))
	return result
}

type resolvedEntity struct {
	Type   common.EntityType
	ID     string
	Action ResolveAction
}

func (p *Pipeline) createDocument(ctx context.Context, fileName string, stored store.StoredFile) (string, error) {
	docID, err := gonanoid.New()
	if err != nil {
		return "", &common.PersistenceError{Op: "generateDocumentId", Err: err}
	}
	now := time.Now().UTC()
	payload := common.DocumentPayload{
		FileName:    fileName,
		ContentHash: stored.ContentHash,
		StoragePath: stored.Path,
		Status:      common.DocumentPending,
	}
	_, err = p.graph.CreateEntity(ctx, &common.Entity{
		ID:         docID,
		Type:       common.EntityDocument,
		CreatedAt:  now,
		UpdatedAt:  now,
		Properties: payload.Properties(),
	})
	if err != nil {
		return "", err
	}
	return docID, nil
}

// fail flips the document to FAILED with the error recorded. The status
// write itself is best effort: if it also fails, the original error still
// wins the result.
func (p *Pipeline) fail(ctx context.Context, result IngestResult, cause error) IngestResult {
	result.Status = common.DocumentFailed
	result.Error = cause.Error()
	logger.Error("[Graph][Pipeline] Ingestion failed", "document", result.DocumentID, "error", cause)

	if result.DocumentID != "" {
		if err := p.graph.SetDocumentStatus(ctx, result.DocumentID, common.DocumentFailed, cause.Error()); err != nil {
			logger.Error("[Graph][Pipeline] Failed to record FAILED status", "document", result.DocumentID, "error", err)
		}
	}
	return result
}

// impliedRelationships synthesizes the edges the pipeline knows to be true
// without a model claim: this document identified each failure mode, risk
// and finding it produced, and each audit in the batch used this document.
func impliedRelationships(docID string, entities []resolvedEntity) []store.SimpleRelationship {
	var rels []store.SimpleRelationship
	for _, e := range entities {
		switch e.Type {
		case common.EntityFailureMode, common.EntityRisk, common.EntityFinding:
			rels = append(rels, store.SimpleRelationship{
				FromID: docID,
				ToID:   e.ID,
				Type:   common.RelIdentifies,
			})
		case common.EntityAudit:
			rels = append(rels, store.SimpleRelationship{
				FromID: e.ID,
				ToID:   docID,
				Type:   common.RelUses,
			})
		}
	}
	return rels
}

func mergeMetadata(processed, request map[string]string) map[string]string {
	out := make(map[string]string, len(processed)+len(request))
	for k, v := range processed {
		out[k] = v
	}
	for k, v := range request {
		out[k] = v
	}
	return out
}

func documentStatus(entity *common.Entity) common.DocumentStatus {
	s, _ := entity.Properties["status"].(string)
	return common.DocumentStatus(s)
}
