package graph

import (
	"github.com/EHS-Labs/sage/backend/pkg/common"
)

// DefaultConfidenceFloor is the minimum confidence a candidate needs to be
// persisted. Exactly the floor passes.
const DefaultConfidenceFloor = 0.7

// Validator is the synchronous gate every candidate batch passes before
// anything touches the graph. It fails closed: one bad candidate discards
// the whole batch. It performs no I/O.
type Validator struct {
	confidenceFloor float64
}

// NewValidatorParams configures a Validator.
type NewValidatorParams struct {
	// ConfidenceFloor overrides DefaultConfidenceFloor when > 0.
	ConfidenceFloor float64
}

// NewValidator creates a Validator.
func NewValidator(params NewValidatorParams) *Validator {
	floor := params.ConfidenceFloor
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	return &Validator{confidenceFloor: floor}
}

// Validate checks a candidate batch against the closed type set, the
// confidence floor, locator presence, per-type required properties,
// endpoint resolution within the batch, and the relationship matrix.
// A nil return means every candidate may be persisted.
func (v *Validator) Validate(entities []common.Candidate, relationships []common.CandidateRelationship) error {
	keys := make(map[common.BusinessKey]common.EntityType, len(entities))

	for i, entity := range entities {
		if !common.IsKnownEntityType(entity.EntityType) {
			return common.NewValidationError("entity %d has unknown type %q", i, entity.EntityType)
		}
		if entity.Confidence < v.confidenceFloor {
			return common.NewValidationError(
				"entity %d (%s) confidence %.2f is below floor %.2f",
				i, entity.EntityType, entity.Confidence, v.confidenceFloor,
			)
		}
		if entity.Locator.Section == "" {
			return common.NewValidationError("entity %d (%s) is missing a source locator section", i, entity.EntityType)
		}
		payload, err := common.PayloadFromProperties(entity.EntityType, entity.Properties)
		if err != nil {
			return common.NewValidationError("entity %d: %v", i, err)
		}
		keys[payload.Key()] = entity.EntityType
	}

	for i, rel := range relationships {
		if rel.Confidence < v.confidenceFloor {
			return common.NewValidationError(
				"relationship %d (%s) confidence %.2f is below floor %.2f",
				i, rel.Type, rel.Confidence, v.confidenceFloor,
			)
		}
		if rel.Locator.Section == "" {
			return common.NewValidationError("relationship %d (%s) is missing a source locator section", i, rel.Type)
		}
		if _, ok := keys[common.BusinessKey{Type: rel.From.Type, Key: rel.From.Key}]; !ok {
			return common.NewValidationError(
				"relationship %d (%s) references %s:%s which is not in the candidate batch",
				i, rel.Type, rel.From.Type, rel.From.Key,
			)
		}
		if _, ok := keys[common.BusinessKey{Type: rel.To.Type, Key: rel.To.Key}]; !ok {
			return common.NewValidationError(
				"relationship %d (%s) references %s:%s which is not in the candidate batch",
				i, rel.Type, rel.To.Type, rel.To.Key,
			)
		}
		if !IsAllowed(rel.From.Type, rel.To.Type, rel.Type) {
			return common.NewValidationError(
				"relationship %d: %s is not allowed from %s to %s",
				i, rel.Type, rel.From.Type, rel.To.Type,
			)
		}
	}

	return nil
}
