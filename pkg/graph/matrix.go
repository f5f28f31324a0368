package graph

import "github.com/EHS-Labs/sage/backend/pkg/common"

type typePair struct {
	From common.EntityType
	To   common.EntityType
}

// relationshipMatrix is the closed rule table of which relationship types
// may connect which entity types. Lookups outside the table are false.
var relationshipMatrix = map[typePair][]common.RelationshipType{
	{common.EntityAudit, common.EntityProcess}:         {common.RelEvaluates},
	{common.EntityAudit, common.EntityDocument}:        {common.RelUses},
	{common.EntityDocument, common.EntityFailureMode}:  {common.RelIdentifies},
	{common.EntityDocument, common.EntityRisk}:         {common.RelIdentifies},
	{common.EntityDocument, common.EntityFinding}:      {common.RelIdentifies},
	{common.EntityDocument, common.EntityRequirement}:  {common.RelReferences},
	{common.EntityFailureMode, common.EntityRisk}:      {common.RelImplies},
	{common.EntityControl, common.EntityFailureMode}:   {common.RelMitigates},
	{common.EntityControl, common.EntityRequirement}:   {common.RelImplements},
	{common.EntityFinding, common.EntityFailureMode}:   {common.RelReferences},
	{common.EntityFinding, common.EntityRequirement}:   {common.RelAddresses},
	{common.EntityProcess, common.EntityRequirement}:   {common.RelSatisfies, common.RelFailsToSatisfy},
	{common.EntityProcedureStep, common.EntityProcess}: {common.RelAppliedIn},
}

// IsAllowed reports whether relType may connect fromType to toType.
// SUPERSEDES is allowed between any two entities of the same type and
// nothing else; all other combinations come from the fixed table.
func IsAllowed(fromType, toType common.EntityType, relType common.RelationshipType) bool {
	if relType == common.RelSupersedes {
		return fromType == toType && common.IsKnownEntityType(fromType)
	}
	for _, allowed := range relationshipMatrix[typePair{From: fromType, To: toType}] {
		if allowed == relType {
			return true
		}
	}
	return false
}
