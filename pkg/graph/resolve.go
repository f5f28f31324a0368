package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	"github.com/EHS-Labs/sage/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ResolveAction describes what the resolver did with a candidate.
type ResolveAction string

const (
	ActionCreated        ResolveAction = "created"
	ActionFoundIdentical ResolveAction = "found_identical"
	ActionCreatedVersion ResolveAction = "created_version"
)

// Resolution is the outcome of resolving one candidate entity.
type Resolution struct {
	EntityID string
	Action   ResolveAction
}

// Resolver deduplicates and versions candidate entities against the graph.
//
// The find-then-create sequence is not guarded against concurrent
// ingestions of the same business key: two racing ingestions can both see
// "not found" and both create a head. Accepted for low-concurrency batch
// ingestion; documents racing on one key should be serialized by the caller.
type Resolver struct {
	store store.GraphStore
}

// NewResolver creates a Resolver over the given graph store.
func NewResolver(graphStore store.GraphStore) *Resolver {
	return &Resolver{store: graphStore}
}

// Resolve maps one validated candidate onto the graph: a brand-new entity,
// a structural match with an existing head, or a new version superseding
// the head. Candidates are expected to have passed the validation gate;
// a malformed property bag still fails safely here.
func (r *Resolver) Resolve(ctx context.Context, candidate common.Candidate, documentID, extractedBy string) (Resolution, error) {
	payload, err := common.PayloadFromProperties(candidate.EntityType, candidate.Properties)
	if err != nil {
		return Resolution{}, common.NewValidationError("%v", err)
	}

	existing, err := r.store.FindDuplicateEntity(ctx, candidate.EntityType, payload.KeyProperties())
	if err != nil {
		return Resolution{}, err
	}

	if existing == nil {
		entityID, err := r.createEntity(ctx, payload, candidate, documentID, extractedBy)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{EntityID: entityID, Action: ActionCreated}, nil
	}

	if common.PropertiesEqual(existing.Properties, payload.Properties()) {
		// The same fact re-asserted: no entity write, but a new source
		// document still contributes a provenance record.
		if !hasProvenanceFrom(existing, documentID) {
			ext, err := newExtraction(documentID, extractedBy, candidate)
			if err != nil {
				return Resolution{}, err
			}
			if err := r.store.AddExtraction(ctx, existing.ID, ext); err != nil {
				return Resolution{}, err
			}
		}
		logger.Debug("[Graph][Resolver] Identical entity found", "type", candidate.EntityType, "id", existing.ID)
		return Resolution{EntityID: existing.ID, Action: ActionFoundIdentical}, nil
	}

	entityID, err := r.createEntity(ctx, payload, candidate, documentID, extractedBy)
	if err != nil {
		return Resolution{}, err
	}
	reason := fmt.Sprintf("properties changed during ingestion of document %s", documentID)
	if err := r.store.CreateSupersedes(ctx, entityID, existing.ID, reason); err != nil {
		return Resolution{}, err
	}
	logger.Info("[Graph][Resolver] New entity version created",
		"type", candidate.EntityType, "new", entityID, "supersedes", existing.ID)
	return Resolution{EntityID: entityID, Action: ActionCreatedVersion}, nil
}

func (r *Resolver) createEntity(ctx context.Context, payload common.Payload, candidate common.Candidate, documentID, extractedBy string) (string, error) {
	entityID, err := gonanoid.New()
	if err != nil {
		return "", &common.PersistenceError{Op: "generateEntityId", Err: err}
	}
	ext, err := newExtraction(documentID, extractedBy, candidate)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	entity := &common.Entity{
		ID:         entityID,
		Type:       candidate.EntityType,
		CreatedAt:  now,
		UpdatedAt:  now,
		Properties: payload.Properties(),
		Provenance: []common.Extraction{ext},
	}
	return r.store.CreateEntity(ctx, entity)
}

func newExtraction(documentID, extractedBy string, candidate common.Candidate) (common.Extraction, error) {
	extID, err := gonanoid.New()
	if err != nil {
		return common.Extraction{}, &common.PersistenceError{Op: "generateExtractionId", Err: err}
	}
	return common.Extraction{
		ID:          extID,
		DocumentID:  documentID,
		ExtractedBy: extractedBy,
		ExtractedAt: time.Now().UTC(),
		Confidence:  candidate.Confidence,
		Locator:     candidate.Locator,
	}, nil
}

func hasProvenanceFrom(entity *common.Entity, documentID string) bool {
	for _, ext := range entity.Provenance {
		if ext.DocumentID == documentID {
			return true
		}
	}
	return false
}
