package common

import "time"

// EntityType tags a node in the knowledge graph. The set is closed:
// candidates carrying any other type are rejected before persistence.
type EntityType string

const (
	EntityProcess       EntityType = "Process"
	EntityAudit         EntityType = "Audit"
	EntityDocument      EntityType = "Document"
	EntityFailureMode   EntityType = "FailureMode"
	EntityRisk          EntityType = "Risk"
	EntityControl       EntityType = "Control"
	EntityFinding       EntityType = "Finding"
	EntityRequirement   EntityType = "Requirement"
	EntityProcedureStep EntityType = "ProcedureStep"
)

// KnownEntityTypes returns the closed set of entity types in a stable order.
func KnownEntityTypes() []EntityType {
	return []EntityType{
		EntityProcess,
		EntityAudit,
		EntityDocument,
		EntityFailureMode,
		EntityRisk,
		EntityControl,
		EntityFinding,
		EntityRequirement,
		EntityProcedureStep,
	}
}

// IsKnownEntityType reports whether t is part of the closed entity type set.
func IsKnownEntityType(t EntityType) bool {
	switch t {
	case EntityProcess, EntityAudit, EntityDocument, EntityFailureMode,
		EntityRisk, EntityControl, EntityFinding, EntityRequirement,
		EntityProcedureStep:
		return true
	}
	return false
}

// RelationshipType tags a directed edge between two entities.
type RelationshipType string

const (
	RelEvaluates      RelationshipType = "EVALUATES"
	RelUses           RelationshipType = "USES"
	RelIdentifies     RelationshipType = "IDENTIFIES"
	RelImplies        RelationshipType = "IMPLIES"
	RelMitigates      RelationshipType = "MITIGATES"
	RelAddresses      RelationshipType = "ADDRESSES"
	RelReferences     RelationshipType = "REFERENCES"
	RelSatisfies      RelationshipType = "SATISFIES"
	RelFailsToSatisfy RelationshipType = "FAILS_TO_SATISFY"
	RelSupersedes     RelationshipType = "SUPERSEDES"
	RelImplements     RelationshipType = "IMPLEMENTS"
	RelAppliedIn      RelationshipType = "APPLIED_IN"
)

// DocumentStatus tracks a document through the ingestion state machine.
// Only the ingestion pipeline mutates it.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentProcessed  DocumentStatus = "PROCESSED"
	DocumentFailed     DocumentStatus = "FAILED"
)

// SourceLocator pins a fact to the place in a source document it was
// asserted from. Section is mandatory for every extracted candidate;
// page and line range are filled when the source format provides them.
type SourceLocator struct {
	Section   string `json:"section"`
	Page      int    `json:"page,omitempty"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`
}

// Extraction is the provenance record attached to every entity and
// relationship creation event: which document, which agent, when, how
// confident, and where in the document.
type Extraction struct {
	ID          string        `json:"id"`
	DocumentID  string        `json:"document_id"`
	ExtractedBy string        `json:"extracted_by"`
	ExtractedAt time.Time     `json:"extracted_at"`
	Confidence  float64       `json:"confidence"`
	Locator     SourceLocator `json:"locator"`
}

// Entity is the persisted envelope around a typed payload. Nodes are
// immutable after creation; a changed fact becomes a new Entity linked to
// its predecessor by a SUPERSEDES edge. The one exception is the small set
// of pipeline-owned status fields on Document nodes.
type Entity struct {
	ID         string         `json:"id"`
	Type       EntityType     `json:"type"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Properties map[string]any `json:"properties"`
	Provenance []Extraction   `json:"provenance,omitempty"`
}

// Relationship is a typed, directed edge as read back from the graph.
type Relationship struct {
	ID           string           `json:"id"`
	FromID       string           `json:"from_id"`
	ToID         string           `json:"to_id"`
	Type         RelationshipType `json:"type"`
	Confidence   float64          `json:"confidence"`
	Properties   map[string]any   `json:"properties,omitempty"`
	ExtractionID string           `json:"extraction_id,omitempty"`
}

// EntityRef points at a candidate entity within the same extraction batch.
// The extraction model emits "Type:key" strings; they are parsed into this
// typed form before any lookup happens.
type EntityRef struct {
	Type EntityType
	Key  string
}

// BusinessKey identifies the real-world thing behind an entity. Two
// candidates with equal business keys are versions of the same fact.
// The struct is comparable and safe to use as a map key.
type BusinessKey struct {
	Type EntityType
	Key  string
}

// Candidate is an entity proposed by the extraction model, not yet
// validated or persisted.
type Candidate struct {
	EntityType EntityType     `json:"entity_type"`
	Properties map[string]any `json:"properties"`
	Confidence float64        `json:"confidence"`
	Locator    SourceLocator  `json:"source_locator"`
}

// CandidateRelationship is a relationship proposed by the extraction
// model. From and To reference candidates in the same batch by business
// key; references that do not resolve are dropped, not errored.
type CandidateRelationship struct {
	From       EntityRef        `json:"from"`
	To         EntityRef        `json:"to"`
	Type       RelationshipType `json:"type"`
	Confidence float64          `json:"confidence"`
	Properties map[string]any   `json:"properties,omitempty"`
	Locator    SourceLocator    `json:"source_locator"`
}
