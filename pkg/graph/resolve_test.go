package graph

import (
	"context"
	"reflect"
	"testing"

	"github.com/EHS-Labs/sage/backend/pkg/common"
)

func addDocument(t *testing.T, s *memoryStore, id string) {
	t.Helper()
	_, err := s.CreateEntity(context.Background(), &common.Entity{
		ID:   id,
		Type: common.EntityDocument,
		Properties: map[string]any{
			"fileName":    id + ".txt",
			"contentHash": "hash-" + id,
			"status":      string(common.DocumentProcessing),
		},
	})
	if err != nil {
		t.Fatalf("creating document %s: %v", id, err)
	}
}

func TestResolveCreatesNewEntity(t *testing.T) {
	s := newMemoryStore()
	addDocument(t, s, "doc-1")
	r := NewResolver(s)

	res, err := r.Resolve(context.Background(), validFailureMode("FM-01"), "doc-1", "test-model")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Action != ActionCreated {
		t.Errorf("action = %s, want %s", res.Action, ActionCreated)
	}

	entity, err := s.GetEntity(context.Background(), res.EntityID)
	if err != nil {
		t.Fatalf("entity not persisted: %v", err)
	}
	if len(entity.Provenance) != 1 {
		t.Fatalf("provenance records = %d, want 1", len(entity.Provenance))
	}
	ext := entity.Provenance[0]
	if ext.DocumentID != "doc-1" || ext.ExtractedBy != "test-model" || ext.Confidence != 0.9 {
		t.Errorf("unexpected extraction record: %+v", ext)
	}
	if ext.Locator.Section != "3.1" {
		t.Errorf("extraction locator section = %q, want 3.1", ext.Locator.Section)
	}
}

func TestResolveIdenticalIsIdempotent(t *testing.T) {
	s := newMemoryStore()
	addDocument(t, s, "doc-1")
	r := NewResolver(s)

	first, err := r.Resolve(context.Background(), validFailureMode("FM-01"), "doc-1", "test-model")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), validFailureMode("FM-01"), "doc-1", "test-model")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if second.Action != ActionFoundIdentical {
		t.Errorf("second action = %s, want %s", second.Action, ActionFoundIdentical)
	}
	if second.EntityID != first.EntityID {
		t.Errorf("second resolve returned %s, want existing %s", second.EntityID, first.EntityID)
	}
	if got := len(s.entitiesOfType(common.EntityFailureMode)); got != 1 {
		t.Errorf("failure mode nodes = %d, want 1", got)
	}

	entity, _ := s.GetEntity(context.Background(), first.EntityID)
	if len(entity.Provenance) != 1 {
		t.Errorf("same-document re-assertion should not add provenance, got %d records", len(entity.Provenance))
	}
}

func TestResolveIdenticalFromSecondDocumentAddsProvenance(t *testing.T) {
	s := newMemoryStore()
	addDocument(t, s, "doc-1")
	addDocument(t, s, "doc-2")
	r := NewResolver(s)

	first, err := r.Resolve(context.Background(), validFailureMode("FM-01"), "doc-1", "test-model")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), validFailureMode("FM-01"), "doc-2", "test-model")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if second.Action != ActionFoundIdentical || second.EntityID != first.EntityID {
		t.Fatalf("second resolve = %+v, want found_identical on %s", second, first.EntityID)
	}

	entity, _ := s.GetEntity(context.Background(), first.EntityID)
	if len(entity.Provenance) != 2 {
		t.Fatalf("provenance records = %d, want 2 (one per source document)", len(entity.Provenance))
	}
	docs := map[string]bool{}
	for _, ext := range entity.Provenance {
		docs[ext.DocumentID] = true
	}
	if !docs["doc-1"] || !docs["doc-2"] {
		t.Errorf("provenance documents = %v, want doc-1 and doc-2", docs)
	}
}

func TestResolveCreatesVersionOnPropertyChange(t *testing.T) {
	s := newMemoryStore()
	addDocument(t, s, "doc-1")
	addDocument(t, s, "doc-2")
	r := NewResolver(s)

	first, err := r.Resolve(context.Background(), validFailureMode("FM-01"), "doc-1", "test-model")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	oldProps := map[string]any{}
	for k, v := range s.entities[first.EntityID].Properties {
		oldProps[k] = v
	}

	changed := validFailureMode("FM-01")
	changed.Properties["description"] = "bearing wear, accelerated under load"
	second, err := r.Resolve(context.Background(), changed, "doc-2", "test-model")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if second.Action != ActionCreatedVersion {
		t.Fatalf("action = %s, want %s", second.Action, ActionCreatedVersion)
	}
	if second.EntityID == first.EntityID {
		t.Fatal("new version must be a new node")
	}

	if len(s.supersedes) != 1 {
		t.Fatalf("supersedes edges = %d, want 1", len(s.supersedes))
	}
	edge := s.supersedes[0]
	if edge.FromID != second.EntityID || edge.ToID != first.EntityID {
		t.Errorf("supersedes edge %s -> %s, want new -> old (%s -> %s)",
			edge.FromID, edge.ToID, second.EntityID, first.EntityID)
	}
	if edge.Reason == "" {
		t.Error("supersedes edge must carry a reason")
	}

	// The old node is append-only: its properties must be untouched.
	if !reflect.DeepEqual(s.entities[first.EntityID].Properties, oldProps) {
		t.Errorf("old version was mutated: %v != %v", s.entities[first.EntityID].Properties, oldProps)
	}
}

// Head selection matches "no outgoing SUPERSEDES edge". The new version is
// the node that gains the outgoing edge, so once a key has been versioned
// the old node is the one that still matches the predicate and lookups
// resolve against it. This test pins the current behavior; changing the
// predicate needs a deliberate decision, not a drive-by fix.
func TestResolveHeadSelectionPrefersStaleVersion(t *testing.T) {
	s := newMemoryStore()
	addDocument(t, s, "doc-1")
	addDocument(t, s, "doc-2")
	addDocument(t, s, "doc-3")
	r := NewResolver(s)

	v1, err := r.Resolve(context.Background(), validFailureMode("FM-01"), "doc-1", "test-model")
	if err != nil {
		t.Fatalf("v1 resolve: %v", err)
	}

	changed := validFailureMode("FM-01")
	changed.Properties["description"] = "bearing wear, accelerated under load"
	if _, err := r.Resolve(context.Background(), changed, "doc-2", "test-model"); err != nil {
		t.Fatalf("v2 resolve: %v", err)
	}

	// Re-asserting v1's original properties now matches the superseded
	// node, which still has no outgoing edge.
	third, err := r.Resolve(context.Background(), validFailureMode("FM-01"), "doc-3", "test-model")
	if err != nil {
		t.Fatalf("third resolve: %v", err)
	}
	if third.Action != ActionFoundIdentical || third.EntityID != v1.EntityID {
		t.Errorf("resolved %+v; current predicate resolves against the superseded node %s", third, v1.EntityID)
	}
}

func TestResolveMalformedCandidateFailsAsValidation(t *testing.T) {
	s := newMemoryStore()
	addDocument(t, s, "doc-1")
	r := NewResolver(s)

	bad := common.Candidate{
		EntityType: common.EntityRisk,
		Properties: map[string]any{"name": "RISK-1"},
		Confidence: 0.9,
		Locator:    common.SourceLocator{Section: "1"},
	}
	_, err := r.Resolve(context.Background(), bad, "doc-1", "test-model")
	if err == nil {
		t.Fatal("expected error for risk without level and description")
	}
	if _, ok := err.(*common.ValidationError); !ok {
		t.Errorf("expected *common.ValidationError, got %T", err)
	}
}
