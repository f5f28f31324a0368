package store

import (
	"context"
	"errors"

	"github.com/EHS-Labs/sage/backend/pkg/common"
)

// ErrNotFound is returned by lookups for ids that do not exist in the graph.
var ErrNotFound = errors.New("entity not found")

// Direction selects which edges GetRelationships follows from an entity.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// CreateRelationshipParams bundles everything needed to persist one
// extracted relationship together with its provenance record.
type CreateRelationshipParams struct {
	FromID      string
	ToID        string
	Type        common.RelationshipType
	Confidence  float64
	Locator     common.SourceLocator
	DocumentID  string
	ExtractedBy string
	Properties  map[string]any
}

// SimpleRelationship is the provenance-free fast path for edges the
// pipeline infers structurally (true by construction, not by model claim).
type SimpleRelationship struct {
	FromID     string
	ToID       string
	Type       common.RelationshipType
	Properties map[string]any
}

// GraphStore is the persistence protocol for the knowledge graph. All
// writes that touch more than one node or edge (entity plus provenance,
// relationship plus provenance) are not atomic; a failure can leave an
// entity without some of its provenance records, and callers are expected
// to re-ingest the document rather than patch the graph.
type GraphStore interface {
	// EnsureSchema creates uniqueness constraints and business-key indexes.
	EnsureSchema(ctx context.Context) error

	// CreateEntity writes the entity node and one Extraction node plus
	// EXTRACTED_FROM / SOURCED_FROM edges per provenance entry. Returns the
	// assigned id.
	CreateEntity(ctx context.Context, entity *common.Entity) (string, error)

	// GetEntity returns the entity with its provenance list reconstructed,
	// or ErrNotFound.
	GetEntity(ctx context.Context, id string) (*common.Entity, error)

	// FindDuplicateEntity looks up the current head entity for a business
	// key, matching on the key property subset. Returns nil when no head
	// exists.
	FindDuplicateEntity(ctx context.Context, entityType common.EntityType, keyProps map[string]any) (*common.Entity, error)

	// AddExtraction attaches an additional provenance record to an existing
	// entity, used when the same fact is re-asserted by another document.
	AddExtraction(ctx context.Context, entityID string, ext common.Extraction) error

	// CreateSupersedes links a new entity version to the one it replaces.
	// The edge always points new -> old and is written exactly once, at
	// version creation.
	CreateSupersedes(ctx context.Context, newID, oldID, reason string) error

	// CreateRelationship writes a relationship-level Extraction node, links
	// it to the source document, then writes the typed edge carrying the
	// confidence and a reference to the extraction id.
	CreateRelationship(ctx context.Context, params CreateRelationshipParams) (string, error)

	// CreateSimpleRelationships writes structurally-implied edges without
	// Extraction records.
	CreateSimpleRelationships(ctx context.Context, rels []SimpleRelationship) error

	// GetRelationships returns the typed edges touching an entity in the
	// given direction.
	GetRelationships(ctx context.Context, entityID string, direction Direction) ([]common.Relationship, error)

	// ExpandRelationships returns the outgoing edges of a set of entities,
	// optionally restricted to the given relationship types.
	ExpandRelationships(ctx context.Context, entityIDs []string, types []common.RelationshipType) ([]common.Relationship, error)

	// QueryByPattern returns entities of a label matching all given
	// properties, with provenance reattached.
	QueryByPattern(ctx context.Context, label string, props map[string]any, limit int) ([]*common.Entity, error)

	// SetDocumentStatus advances a document through the ingestion state
	// machine. errorMessage is recorded on FAILED and cleared otherwise.
	SetDocumentStatus(ctx context.Context, documentID string, status common.DocumentStatus, errorMessage string) error
}

// DocumentStorage stores raw ingested files content-addressed by hash.
type DocumentStorage interface {
	Store(ctx context.Context, fileName string, data []byte) (StoredFile, error)
	Get(ctx context.Context, path string) ([]byte, error)
}

// StoredFile describes a stored raw document.
type StoredFile struct {
	Path        string
	ContentHash string
	Size        int64
}
