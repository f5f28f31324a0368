package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/store"
)

func fmeaBatch() ExtractionResult {
	return ExtractionResult{
		Entities: []common.Candidate{
			{
				EntityType: common.EntityAudit,
				Properties: map[string]any{"name": "Q3 line audit"},
				Confidence: 0.95,
				Locator:    common.SourceLocator{Section: "1"},
			},
			validFailureMode("FM-01"),
			validRisk("RISK-1"),
			validControl("CTRL-1"),
		},
		Relationships: []common.CandidateRelationship{
			{
				From:       common.EntityRef{Type: common.EntityFailureMode, Key: "FM-01"},
				To:         common.EntityRef{Type: common.EntityRisk, Key: "RISK-1"},
				Type:       common.RelImplies,
				Confidence: 0.85,
				Locator:    common.SourceLocator{Section: "3.2"},
			},
			{
				From:       common.EntityRef{Type: common.EntityControl, Key: "CTRL-1"},
				To:         common.EntityRef{Type: common.EntityFailureMode, Key: "FM-01"},
				Type:       common.RelMitigates,
				Confidence: 0.9,
				Locator:    common.SourceLocator{Section: "4.2"},
			},
		},
		ModelUsed: "test-model",
	}
}

func newTestPipeline(s *memoryStore, extractor Extractor, indexer Indexer) *Pipeline {
	return NewPipeline(NewPipelineParams{
		GraphStore:      s,
		DocumentStorage: newMemoryFiles(),
		Processor:       &fakeProcessor{text: "FMEA worksheet content"},
		Extractor:       extractor,
		Validator:       NewValidator(NewValidatorParams{}),
		Indexer:         indexer,
	})
}

func TestIngestSuccess(t *testing.T) {
	s := newMemoryStore()
	p := newTestPipeline(s, &fakeExtractor{result: fmeaBatch()}, nil)

	result := p.Ingest(context.Background(), IngestRequest{
		FileName: "fmea.txt",
		Data:     []byte("FMEA worksheet content"),
	})

	if result.Status != common.DocumentProcessed {
		t.Fatalf("status = %s (error %q), want PROCESSED", result.Status, result.Error)
	}
	if result.DocumentID == "" {
		t.Fatal("result must carry the document id")
	}

	wantCounts := map[common.EntityType]int{
		common.EntityAudit:       1,
		common.EntityFailureMode: 1,
		common.EntityRisk:        1,
		common.EntityControl:     1,
	}
	for entityType, want := range wantCounts {
		if result.EntitiesCreated[entityType] != want {
			t.Errorf("entitiesCreated[%s] = %d, want %d", entityType, result.EntitiesCreated[entityType], want)
		}
	}
	if result.RelationshipsCreated != 2 {
		t.Errorf("relationshipsCreated = %d, want 2", result.RelationshipsCreated)
	}

	doc, err := s.GetEntity(context.Background(), result.DocumentID)
	if err != nil {
		t.Fatalf("document node missing: %v", err)
	}
	if documentStatus(doc) != common.DocumentProcessed {
		t.Errorf("document status = %s, want PROCESSED", documentStatus(doc))
	}
	if doc.Properties["contentHash"] == "" {
		t.Error("document node must carry its content hash")
	}

	// Every persisted relationship carries provenance context.
	for _, rel := range s.relationships {
		if rel.Params.DocumentID != result.DocumentID {
			t.Errorf("relationship %s sourced from %q, want %q", rel.ID, rel.Params.DocumentID, result.DocumentID)
		}
		if rel.Params.ExtractedBy != "test-model" {
			t.Errorf("relationship %s extractedBy = %q", rel.ID, rel.Params.ExtractedBy)
		}
	}
}

func TestIngestSynthesizesImpliedRelationships(t *testing.T) {
	s := newMemoryStore()
	p := newTestPipeline(s, &fakeExtractor{result: fmeaBatch()}, nil)

	result := p.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("content")})
	if result.Status != common.DocumentProcessed {
		t.Fatalf("status = %s: %s", result.Status, result.Error)
	}

	var identifies, uses int
	for _, rel := range s.simpleRels {
		switch rel.Type {
		case common.RelIdentifies:
			if rel.FromID != result.DocumentID {
				t.Errorf("IDENTIFIES must start at the document, got %s", rel.FromID)
			}
			identifies++
		case common.RelUses:
			if rel.ToID != result.DocumentID {
				t.Errorf("USES must end at the document, got %s", rel.ToID)
			}
			uses++
		}
	}
	// FM-01 and RISK-1 identified by the document, the audit uses it.
	if identifies != 2 {
		t.Errorf("IDENTIFIES edges = %d, want 2", identifies)
	}
	if uses != 1 {
		t.Errorf("USES edges = %d, want 1", uses)
	}
}

func TestIngestExtractionFailure(t *testing.T) {
	s := newMemoryStore()
	extractErr := &common.ExtractionError{Err: errors.New("model unavailable")}
	p := newTestPipeline(s, &fakeExtractor{err: extractErr}, nil)

	result := p.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("content")})

	if result.Status != common.DocumentFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
	if result.Error == "" {
		t.Error("failed result must carry an error message")
	}

	doc, err := s.GetEntity(context.Background(), result.DocumentID)
	if err != nil {
		t.Fatalf("document node must survive the failure: %v", err)
	}
	if documentStatus(doc) != common.DocumentFailed {
		t.Errorf("document status = %s, want FAILED", documentStatus(doc))
	}
	if s.docErrors[result.DocumentID] == "" {
		t.Error("document must record a non-empty error message")
	}

	// Nothing but the document node itself was written.
	if got := len(s.entities); got != 1 {
		t.Errorf("entity nodes = %d, want only the document", got)
	}
	if len(s.relationships) != 0 || len(s.simpleRels) != 0 {
		t.Error("no relationships may be written on extraction failure")
	}
}

func TestIngestValidationFailureWritesNothing(t *testing.T) {
	s := newMemoryStore()
	batch := fmeaBatch()
	batch.Entities[1].Confidence = 0.3
	p := newTestPipeline(s, &fakeExtractor{result: batch}, nil)

	result := p.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("content")})

	if result.Status != common.DocumentFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
	if got := len(s.entities); got != 1 {
		t.Errorf("entity nodes = %d, want only the document (fail closed)", got)
	}
	for entityType, count := range result.EntitiesCreated {
		if count != 0 {
			t.Errorf("entitiesCreated[%s] = %d, want 0", entityType, count)
		}
	}
}

func TestIngestSkipsRelationshipsWithUnresolvedEndpoints(t *testing.T) {
	s := newMemoryStore()
	batch := fmeaBatch()
	// Endpoint key that resolves to nothing: validation is bypassed for it
	// because the entity batch contains a FailureMode with a different key.
	batch.Relationships = append(batch.Relationships, common.CandidateRelationship{
		From:       common.EntityRef{Type: common.EntityControl, Key: "CTRL-1"},
		To:         common.EntityRef{Type: common.EntityFailureMode, Key: "FM-01"},
		Type:       common.RelMitigates,
		Confidence: 0.9,
		Locator:    common.SourceLocator{Section: "4.2"},
	})
	p := newTestPipeline(s, &fakeExtractor{result: batch}, nil)

	result := p.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("content")})
	if result.Status != common.DocumentProcessed {
		t.Fatalf("status = %s: %s", result.Status, result.Error)
	}
	// The duplicate MITIGATES edge resolves fine; both are persisted.
	if result.RelationshipsCreated != 3 {
		t.Errorf("relationshipsCreated = %d, want 3", result.RelationshipsCreated)
	}
}

func TestIngestIndexerFailureIsNonFatal(t *testing.T) {
	s := newMemoryStore()
	indexer := &failingIndexer{}
	p := newTestPipeline(s, &fakeExtractor{result: fmeaBatch()}, indexer)

	result := p.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("content")})

	if result.Status != common.DocumentProcessed {
		t.Fatalf("indexer failure must not fail ingestion, status = %s: %s", result.Status, result.Error)
	}
	if indexer.calls != 1 {
		t.Errorf("indexer calls = %d, want 1", indexer.calls)
	}
	doc, _ := s.GetEntity(context.Background(), result.DocumentID)
	if documentStatus(doc) != common.DocumentProcessed {
		t.Error("document must stay PROCESSED after indexing failure")
	}
}

func TestIngestDeduplicatesByContentHash(t *testing.T) {
	s := newMemoryStore()
	p := newTestPipeline(s, &fakeExtractor{result: fmeaBatch()}, nil)

	first := p.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("same bytes")})
	if first.Status != common.DocumentProcessed {
		t.Fatalf("first ingest failed: %s", first.Error)
	}

	second := p.Ingest(context.Background(), IngestRequest{FileName: "renamed.txt", Data: []byte("same bytes")})
	if second.Status != common.DocumentProcessed {
		t.Fatalf("second ingest failed: %s", second.Error)
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("re-ingesting identical bytes created a new document %s, want %s", second.DocumentID, first.DocumentID)
	}
	if got := len(s.entitiesOfType(common.EntityDocument)); got != 1 {
		t.Errorf("document nodes = %d, want 1", got)
	}
}

func TestIngestReprocessesFailedDocument(t *testing.T) {
	s := newMemoryStore()

	// First attempt dies in extraction and leaves the document FAILED.
	broken := newTestPipeline(s, &fakeExtractor{err: &common.ExtractionError{Err: errors.New("model unavailable")}}, nil)
	first := broken.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("same bytes")})
	if first.Status != common.DocumentFailed {
		t.Fatalf("first ingest status = %s, want FAILED", first.Status)
	}

	// Re-ingesting the identical bytes must resume on the existing node
	// rather than minting a second document for the same content hash.
	p := newTestPipeline(s, &fakeExtractor{result: fmeaBatch()}, nil)
	second := p.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("same bytes")})
	if second.Status != common.DocumentProcessed {
		t.Fatalf("re-ingest status = %s: %s", second.Status, second.Error)
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("re-ingest created document %s, want the failed one %s reused", second.DocumentID, first.DocumentID)
	}
	if got := len(s.entitiesOfType(common.EntityDocument)); got != 1 {
		t.Errorf("document nodes = %d, want 1", got)
	}

	doc, err := s.GetEntity(context.Background(), first.DocumentID)
	if err != nil {
		t.Fatalf("document node missing: %v", err)
	}
	if documentStatus(doc) != common.DocumentProcessed {
		t.Errorf("document status = %s, want PROCESSED", documentStatus(doc))
	}
	if s.docErrors[first.DocumentID] != "" {
		t.Errorf("recorded error %q must be cleared on reprocessing", s.docErrors[first.DocumentID])
	}
}

func TestIngestPersistenceFailureMarksFailed(t *testing.T) {
	s := newMemoryStore()

	// Let the document node through, then refuse every later entity write.
	p := NewPipeline(NewPipelineParams{
		GraphStore:      &failAfterFirstCreate{memoryStore: s},
		DocumentStorage: newMemoryFiles(),
		Processor:       &fakeProcessor{text: "content"},
		Extractor:       &fakeExtractor{result: fmeaBatch()},
		Validator:       NewValidator(NewValidatorParams{}),
	})
	res := p.Ingest(context.Background(), IngestRequest{FileName: "fmea.txt", Data: []byte("content")})
	if res.Status != common.DocumentFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if res.Error == "" {
		t.Error("persistence failure must surface in the result error")
	}
}

// failAfterFirstCreate lets the Document node through and refuses every
// later entity write.
type failAfterFirstCreate struct {
	*memoryStore
	creates int
}

func (f *failAfterFirstCreate) CreateEntity(ctx context.Context, entity *common.Entity) (string, error) {
	f.creates++
	if f.creates > 1 {
		return "", &common.PersistenceError{Op: "createEntity", Err: errors.New("write refused")}
	}
	return f.memoryStore.CreateEntity(ctx, entity)
}

var _ store.GraphStore = (*failAfterFirstCreate)(nil)
