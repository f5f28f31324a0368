package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/logger"
	"github.com/EHS-Labs/sage/backend/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const defaultTimeout = 30 * time.Second

// GraphDBStore implements store.GraphStore on a Neo4j property graph.
// Every operation runs in its own session with a per-call timeout; writes
// spanning several nodes and edges are not transactional across calls.
type GraphDBStore struct {
	driver  neo4j.DriverWithContext
	timeout time.Duration
}

// NewGraphDBStoreParams configures a new GraphDBStore.
type NewGraphDBStoreParams struct {
	Driver  neo4j.DriverWithContext
	Timeout time.Duration
}

// NewGraphDBStore creates a GraphDBStore around an existing driver.
func NewGraphDBStore(params NewGraphDBStoreParams) *GraphDBStore {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GraphDBStore{
		driver:  params.Driver,
		timeout: timeout,
	}
}

func (s *GraphDBStore) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// CreateEntity writes the entity node and its provenance sub-records. The
// node write and each provenance write are separate statements within one
// session; a failure after the node write leaves a node without full
// provenance and surfaces as a PersistenceError.
func (s *GraphDBStore) CreateEntity(ctx context.Context, entity *common.Entity) (string, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	label := sanitizeLabel(string(entity.Type))
	cypher := fmt.Sprintf(`CREATE (n:Entity:%s) SET n = $props RETURN n.id`, label)
	if _, err := sess.Run(ctx, cypher, map[string]any{"props": entityToProps(entity)}); err != nil {
		return "", &common.PersistenceError{Op: "createEntity", Err: err}
	}

	for _, ext := range entity.Provenance {
		if err := s.addExtractionInSession(ctx, sess, entity.ID, ext); err != nil {
			return "", err
		}
	}

	logger.Debug("[Graph][Store] Entity created", "id", entity.ID, "type", entity.Type)
	return entity.ID, nil
}

// GetEntity returns an entity with its provenance reconstructed by
// following EXTRACTED_FROM edges.
func (s *GraphDBStore) GetEntity(ctx context.Context, id string) (*common.Entity, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:Entity {id: $id})
		OPTIONAL MATCH (n)-[:EXTRACTED_FROM]->(x:Extraction)
		RETURN n, collect(x) AS provenance`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, &common.PersistenceError{Op: "getEntity", Err: err}
	}
	if !result.Next(ctx) {
		return nil, store.ErrNotFound
	}
	return entityWithProvenance(result.Record())
}

// FindDuplicateEntity returns the head entity for a business key, or nil.
//
// Head selection matches nodes with no outgoing SUPERSEDES edge. An entity
// that has itself been superseded also has no outgoing edge, so once a key
// has been versioned twice this can resolve against a stale version; the
// behavior is kept intentionally and exercised in tests until the intended
// head semantics are confirmed.
func (s *GraphDBStore) FindDuplicateEntity(ctx context.Context, entityType common.EntityType, keyProps map[string]any) (*common.Entity, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	label := sanitizeLabel(string(entityType))
	conditions := make([]string, 0, len(keyProps))
	params := make(map[string]any, len(keyProps))
	for i, key := range common.SortedPropertyKeys(keyProps) {
		param := fmt.Sprintf("key%d", i)
		conditions = append(conditions, fmt.Sprintf("n.%s = $%s", sanitizeLabel(key), param))
		params[param] = keyProps[key]
	}

	cypher := fmt.Sprintf(`MATCH (n:Entity:%s)
		WHERE %s AND NOT (n)-[:SUPERSEDES]->(:%s)
		OPTIONAL MATCH (n)-[:EXTRACTED_FROM]->(x:Extraction)
		RETURN n, collect(x) AS provenance
		ORDER BY n.createdAt DESC
		LIMIT 1`, label, strings.Join(conditions, " AND "), label)

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, &common.PersistenceError{Op: "findDuplicateEntity", Err: err}
	}
	if !result.Next(ctx) {
		return nil, nil
	}
	return entityWithProvenance(result.Record())
}

// AddExtraction attaches one provenance record to an existing entity.
func (s *GraphDBStore) AddExtraction(ctx context.Context, entityID string, ext common.Extraction) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	return s.addExtractionInSession(ctx, sess, entityID, ext)
}

func (s *GraphDBStore) addExtractionInSession(ctx context.Context, sess neo4j.SessionWithContext, entityID string, ext common.Extraction) error {
	cypher := `MATCH (e:Entity {id: $entityId})
		MATCH (d:Entity:Document {id: $documentId})
		CREATE (x:Extraction) SET x = $props
		CREATE (e)-[:EXTRACTED_FROM]->(x)
		CREATE (x)-[:SOURCED_FROM]->(d)
		RETURN x.id`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"entityId":   entityID,
		"documentId": ext.DocumentID,
		"props":      extractionToProps(ext),
	})
	if err != nil {
		return &common.PersistenceError{Op: "addExtraction", Err: err}
	}
	if !result.Next(ctx) {
		return &common.PersistenceError{
			Op:  "addExtraction",
			Err: fmt.Errorf("entity %s or document %s not found", entityID, ext.DocumentID),
		}
	}
	return nil
}

// CreateSupersedes writes the version edge from a new entity to the one it
// replaces, carrying the reason and date of the supersession.
func (s *GraphDBStore) CreateSupersedes(ctx context.Context, newID, oldID, reason string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (new:Entity {id: $newId}), (old:Entity {id: $oldId})
		CREATE (new)-[r:SUPERSEDES {reason: $reason, date: $date}]->(old)
		RETURN r`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"newId":  newID,
		"oldId":  oldID,
		"reason": reason,
		"date":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return &common.PersistenceError{Op: "createSupersedes", Err: err}
	}
	if !result.Next(ctx) {
		return &common.PersistenceError{
			Op:  "createSupersedes",
			Err: fmt.Errorf("entity %s or %s not found", newID, oldID),
		}
	}
	return nil
}

// CreateRelationship writes the relationship-level Extraction node, links
// it to the source document, then writes the typed edge referencing it.
func (s *GraphDBStore) CreateRelationship(ctx context.Context, params store.CreateRelationshipParams) (string, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	extID, err := newID()
	if err != nil {
		return "", &common.PersistenceError{Op: "createRelationship", Err: err}
	}
	relID, err := newID()
	if err != nil {
		return "", &common.PersistenceError{Op: "createRelationship", Err: err}
	}

	ext := common.Extraction{
		ID:          extID,
		DocumentID:  params.DocumentID,
		ExtractedBy: params.ExtractedBy,
		ExtractedAt: time.Now().UTC(),
		Confidence:  params.Confidence,
		Locator:     params.Locator,
	}

	extCypher := `MATCH (d:Entity:Document {id: $documentId})
		CREATE (x:Extraction) SET x = $props
		CREATE (x)-[:SOURCED_FROM]->(d)
		RETURN x.id`
	extResult, err := sess.Run(ctx, extCypher, map[string]any{
		"documentId": params.DocumentID,
		"props":      extractionToProps(ext),
	})
	if err != nil {
		return "", &common.PersistenceError{Op: "createRelationship", Err: err}
	}
	if !extResult.Next(ctx) {
		return "", &common.PersistenceError{
			Op:  "createRelationship",
			Err: fmt.Errorf("document %s not found", params.DocumentID),
		}
	}

	relProps := common.NormalizeProperties(params.Properties)
	edgeProps := make(map[string]any, len(relProps)+3)
	for k, v := range relProps {
		edgeProps[k] = v
	}
	edgeProps["id"] = relID
	edgeProps["confidence"] = params.Confidence
	edgeProps["extractionId"] = extID

	relCypher := fmt.Sprintf(`MATCH (a:Entity {id: $fromId}), (b:Entity {id: $toId})
		CREATE (a)-[r:%s]->(b) SET r = $props
		RETURN r.id`, sanitizeLabel(string(params.Type)))
	relResult, err := sess.Run(ctx, relCypher, map[string]any{
		"fromId": params.FromID,
		"toId":   params.ToID,
		"props":  edgeProps,
	})
	if err != nil {
		return "", &common.PersistenceError{Op: "createRelationship", Err: err}
	}
	if !relResult.Next(ctx) {
		return "", &common.PersistenceError{
			Op:  "createRelationship",
			Err: fmt.Errorf("endpoint %s or %s not found", params.FromID, params.ToID),
		}
	}

	logger.Debug("[Graph][Store] Relationship created", "type", params.Type, "from", params.FromID, "to", params.ToID)
	return relID, nil
}

// CreateSimpleRelationships writes structurally-implied edges without
// Extraction records, in a single write transaction.
func (s *GraphDBStore) CreateSimpleRelationships(ctx context.Context, rels []store.SimpleRelationship) error {
	if len(rels) == 0 {
		return nil
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, rel := range rels {
			relID, err := newID()
			if err != nil {
				return nil, err
			}
			props := common.NormalizeProperties(rel.Properties)
			edgeProps := make(map[string]any, len(props)+1)
			for k, v := range props {
				edgeProps[k] = v
			}
			edgeProps["id"] = relID

			cypher := fmt.Sprintf(`MATCH (a:Entity {id: $fromId}), (b:Entity {id: $toId})
				MERGE (a)-[r:%s]->(b)
				ON CREATE SET r = $props`, sanitizeLabel(string(rel.Type)))
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"fromId": rel.FromID,
				"toId":   rel.ToID,
				"props":  edgeProps,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return &common.PersistenceError{Op: "createSimpleRelationships", Err: err}
	}
	return nil
}

// GetRelationships returns the typed edges touching an entity. Bookkeeping
// edges to Extraction nodes are excluded by matching Entity endpoints only.
func (s *GraphDBStore) GetRelationships(ctx context.Context, entityID string, direction store.Direction) ([]common.Relationship, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	var pattern string
	switch direction {
	case store.DirectionOutgoing:
		pattern = `(n:Entity {id: $id})-[r]->(m:Entity)`
	case store.DirectionIncoming:
		pattern = `(n:Entity {id: $id})<-[r]-(m:Entity)`
	default:
		pattern = `(n:Entity {id: $id})-[r]-(m:Entity)`
	}

	cypher := fmt.Sprintf(`MATCH %s
		RETURN startNode(r).id AS fromId, endNode(r).id AS toId, type(r) AS relType, properties(r) AS props`, pattern)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": entityID})
	if err != nil {
		return nil, &common.PersistenceError{Op: "getRelationships", Err: err}
	}
	return collectRelationships(ctx, result)
}

// ExpandRelationships returns the outgoing edges of a set of entities,
// optionally restricted to the given relationship types. Used by the
// read-side query facade for multi-hop traversal.
func (s *GraphDBStore) ExpandRelationships(ctx context.Context, entityIDs []string, types []common.RelationshipType) ([]common.Relationship, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	cypher := `MATCH (a:Entity)-[r]->(b:Entity)
		WHERE a.id IN $ids AND (size($types) = 0 OR type(r) IN $types)
		RETURN startNode(r).id AS fromId, endNode(r).id AS toId, type(r) AS relType, properties(r) AS props`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"ids":   entityIDs,
		"types": typeNames,
	})
	if err != nil {
		return nil, &common.PersistenceError{Op: "expandRelationships", Err: err}
	}
	return collectRelationships(ctx, result)
}

// QueryByPattern returns entities of a label matching all given
// properties, with their provenance reattached.
func (s *GraphDBStore) QueryByPattern(ctx context.Context, label string, props map[string]any, limit int) ([]*common.Entity, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	if limit <= 0 {
		limit = 50
	}

	conditions := make([]string, 0, len(props))
	params := map[string]any{"limit": limit}
	for i, key := range common.SortedPropertyKeys(props) {
		param := fmt.Sprintf("p%d", i)
		conditions = append(conditions, fmt.Sprintf("n.%s = $%s", sanitizeLabel(key), param))
		params[param] = props[key]
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	cypher := fmt.Sprintf(`MATCH (n:Entity:%s) %s
		OPTIONAL MATCH (n)-[:EXTRACTED_FROM]->(x:Extraction)
		RETURN n, collect(x) AS provenance
		LIMIT $limit`, sanitizeLabel(label), where)
	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, &common.PersistenceError{Op: "queryByPattern", Err: err}
	}

	var entities []*common.Entity
	for result.Next(ctx) {
		e, err := entityWithProvenance(result.Record())
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// SetDocumentStatus advances a document through the ingestion state
// machine. This is the only mutation ever applied to an existing node.
func (s *GraphDBStore) SetDocumentStatus(ctx context.Context, documentID string, status common.DocumentStatus, errorMessage string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (d:Entity:Document {id: $id})
		SET d.status = $status, d.error = $error, d.updatedAt = $now
		RETURN d.id`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"id":     documentID,
		"status": string(status),
		"error":  errorMessage,
		"now":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return &common.PersistenceError{Op: "setDocumentStatus", Err: err}
	}
	if !result.Next(ctx) {
		return &common.PersistenceError{
			Op:  "setDocumentStatus",
			Err: fmt.Errorf("document %s not found", documentID),
		}
	}
	return nil
}

func collectRelationships(ctx context.Context, result neo4j.ResultWithContext) ([]common.Relationship, error) {
	var rels []common.Relationship
	for result.Next(ctx) {
		record := result.Record()
		fromID, _ := record.Get("fromId")
		toID, _ := record.Get("toId")
		relType, _ := record.Get("relType")
		propsVal, _ := record.Get("props")

		props, _ := propsVal.(map[string]any)
		from, _ := fromID.(string)
		to, _ := toID.(string)
		name, _ := relType.(string)
		rels = append(rels, relationshipFromRecord(name, props, from, to))
	}
	return rels, nil
}

func entityWithProvenance(record *neo4j.Record) (*common.Entity, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](record, "n")
	if err != nil {
		return nil, &common.PersistenceError{Op: "readEntity", Err: err}
	}
	entity := entityFromNode(node)

	if provenanceVal, ok := record.Get("provenance"); ok {
		if list, ok := provenanceVal.([]any); ok {
			for _, raw := range list {
				if extNode, ok := raw.(dbtype.Node); ok {
					entity.Provenance = append(entity.Provenance, extractionFromNode(extNode))
				}
			}
		}
	}
	return entity, nil
}
