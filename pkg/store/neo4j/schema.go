package neo4j

import (
	"context"
	"fmt"

	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// business-key index per entity type, used by head lookups.
var keyIndexes = map[common.EntityType][]string{
	common.EntityProcess:       {"name", "version"},
	common.EntityAudit:         {"name"},
	common.EntityDocument:      {"contentHash"},
	common.EntityFailureMode:   {"code"},
	common.EntityRisk:          {"name"},
	common.EntityControl:       {"code"},
	common.EntityFinding:       {"code"},
	common.EntityRequirement:   {"code"},
	common.EntityProcedureStep: {"stepNumber", "processId"},
}

// EnsureSchema creates the uniqueness constraints and business-key indexes
// the resolver depends on. Statements are idempotent, safe to run at every
// startup.
func (s *GraphDBStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE`,
		`CREATE CONSTRAINT extraction_id IF NOT EXISTS FOR (n:Extraction) REQUIRE n.id IS UNIQUE`,
	}
	for entityType, keys := range keyIndexes {
		label := sanitizeLabel(string(entityType))
		for _, key := range keys {
			statements = append(statements, fmt.Sprintf(
				`CREATE INDEX %s_%s IF NOT EXISTS FOR (n:%s) ON (n.%s)`,
				label, key, label, sanitizeLabel(key),
			))
		}
	}

	for _, stmt := range statements {
		if _, err := sess.Run(ctx, stmt, nil); err != nil {
			return &common.PersistenceError{Op: "ensureSchema", Err: err}
		}
	}

	logger.Info("[Graph][Store] Schema ensured", "constraints", 2, "indexes", len(statements)-2)
	return nil
}

func newID() (string, error) {
	return gonanoid.New()
}
