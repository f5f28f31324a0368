package graph

import (
	"testing"

	"github.com/EHS-Labs/sage/backend/pkg/common"
)

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name string
		from common.EntityType
		to   common.EntityType
		rel  common.RelationshipType
		want bool
	}{
		{"audit evaluates process", common.EntityAudit, common.EntityProcess, common.RelEvaluates, true},
		{"audit uses document", common.EntityAudit, common.EntityDocument, common.RelUses, true},
		{"document identifies failure mode", common.EntityDocument, common.EntityFailureMode, common.RelIdentifies, true},
		{"document identifies risk", common.EntityDocument, common.EntityRisk, common.RelIdentifies, true},
		{"document identifies finding", common.EntityDocument, common.EntityFinding, common.RelIdentifies, true},
		{"document references requirement", common.EntityDocument, common.EntityRequirement, common.RelReferences, true},
		{"failure mode implies risk", common.EntityFailureMode, common.EntityRisk, common.RelImplies, true},
		{"control mitigates failure mode", common.EntityControl, common.EntityFailureMode, common.RelMitigates, true},
		{"control implements requirement", common.EntityControl, common.EntityRequirement, common.RelImplements, true},
		{"finding references failure mode", common.EntityFinding, common.EntityFailureMode, common.RelReferences, true},
		{"finding addresses requirement", common.EntityFinding, common.EntityRequirement, common.RelAddresses, true},
		{"process satisfies requirement", common.EntityProcess, common.EntityRequirement, common.RelSatisfies, true},
		{"process fails to satisfy requirement", common.EntityProcess, common.EntityRequirement, common.RelFailsToSatisfy, true},
		{"procedure step applied in process", common.EntityProcedureStep, common.EntityProcess, common.RelAppliedIn, true},

		{"control cannot mitigate a risk directly", common.EntityControl, common.EntityRisk, common.RelMitigates, false},
		{"risk does not imply failure mode", common.EntityRisk, common.EntityFailureMode, common.RelImplies, false},
		{"reversed direction rejected", common.EntityProcess, common.EntityAudit, common.RelEvaluates, false},
		{"wrong type on known pair rejected", common.EntityFailureMode, common.EntityRisk, common.RelMitigates, false},
		{"unknown pair rejected", common.EntityAudit, common.EntityRisk, common.RelEvaluates, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAllowed(tt.from, tt.to, tt.rel); got != tt.want {
				t.Errorf("IsAllowed(%s, %s, %s) = %v, want %v", tt.from, tt.to, tt.rel, got, tt.want)
			}
		})
	}
}

func TestIsAllowedSupersedes(t *testing.T) {
	for _, entityType := range common.KnownEntityTypes() {
		if !IsAllowed(entityType, entityType, common.RelSupersedes) {
			t.Errorf("SUPERSEDES %s -> %s should be allowed", entityType, entityType)
		}
	}
	if IsAllowed(common.EntityRisk, common.EntityControl, common.RelSupersedes) {
		t.Error("SUPERSEDES across types should be rejected")
	}
	if IsAllowed("Widget", "Widget", common.RelSupersedes) {
		t.Error("SUPERSEDES on unknown type should be rejected")
	}
}
