package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/EHS-Labs/sage/backend/pkg/common"
	"github.com/EHS-Labs/sage/backend/pkg/loader"
	"github.com/EHS-Labs/sage/backend/pkg/store"
)

// memoryStore is an in-memory GraphStore modeling the same node and edge
// shapes as the real graph, including the version arena and provenance.
type memoryStore struct {
	entities      map[string]*common.Entity
	supersedes    []supersedesEdge
	relationships []storedRelationship
	simpleRels    []store.SimpleRelationship
	docErrors     map[string]string
}

type supersedesEdge struct {
	FromID string
	ToID   string
	Reason string
}

type storedRelationship struct {
	Params store.CreateRelationshipParams
	ID     string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entities:  make(map[string]*common.Entity),
		docErrors: make(map[string]string),
	}
}

func (m *memoryStore) EnsureSchema(ctx context.Context) error { return nil }

func (m *memoryStore) CreateEntity(ctx context.Context, entity *common.Entity) (string, error) {
	clone := *entity
	clone.Properties = common.NormalizeProperties(entity.Properties)
	clone.Provenance = append([]common.Extraction(nil), entity.Provenance...)
	m.entities[entity.ID] = &clone
	return entity.ID, nil
}

func (m *memoryStore) GetEntity(ctx context.Context, id string) (*common.Entity, error) {
	entity, ok := m.entities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *entity
	return &clone, nil
}

func (m *memoryStore) FindDuplicateEntity(ctx context.Context, entityType common.EntityType, keyProps map[string]any) (*common.Entity, error) {
	normalizedKey := common.NormalizeProperties(keyProps)
	var candidates []*common.Entity
	for _, entity := range m.entities {
		if entity.Type != entityType {
			continue
		}
		if m.hasOutgoingSupersedes(entity.ID) {
			continue
		}
		match := true
		for k, v := range normalizedKey {
			if !reflect.DeepEqual(entity.Properties[k], v) {
				match = false
				break
			}
		}
		if match {
			candidates = append(candidates, entity)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	clone := *candidates[0]
	return &clone, nil
}

func (m *memoryStore) hasOutgoingSupersedes(id string) bool {
	for _, edge := range m.supersedes {
		if edge.FromID == id {
			return true
		}
	}
	return false
}

func (m *memoryStore) AddExtraction(ctx context.Context, entityID string, ext common.Extraction) error {
	entity, ok := m.entities[entityID]
	if !ok {
		return &common.PersistenceError{Op: "addExtraction", Err: store.ErrNotFound}
	}
	entity.Provenance = append(entity.Provenance, ext)
	return nil
}

func (m *memoryStore) CreateSupersedes(ctx context.Context, newID, oldID, reason string) error {
	if _, ok := m.entities[newID]; !ok {
		return &common.PersistenceError{Op: "createSupersedes", Err: store.ErrNotFound}
	}
	if _, ok := m.entities[oldID]; !ok {
		return &common.PersistenceError{Op: "createSupersedes", Err: store.ErrNotFound}
	}
	m.supersedes = append(m.supersedes, supersedesEdge{FromID: newID, ToID: oldID, Reason: reason})
	return nil
}

func (m *memoryStore) CreateRelationship(ctx context.Context, params store.CreateRelationshipParams) (string, error) {
	if _, ok := m.entities[params.FromID]; !ok {
		return "", &common.PersistenceError{Op: "createRelationship", Err: store.ErrNotFound}
	}
	if _, ok := m.entities[params.ToID]; !ok {
		return "", &common.PersistenceError{Op: "createRelationship", Err: store.ErrNotFound}
	}
	id := fmt.Sprintf("rel-%d", len(m.relationships)+1)
	m.relationships = append(m.relationships, storedRelationship{Params: params, ID: id})
	return id, nil
}

func (m *memoryStore) CreateSimpleRelationships(ctx context.Context, rels []store.SimpleRelationship) error {
	m.simpleRels = append(m.simpleRels, rels...)
	return nil
}

func (m *memoryStore) GetRelationships(ctx context.Context, entityID string, direction store.Direction) ([]common.Relationship, error) {
	var out []common.Relationship
	for _, rel := range m.relationships {
		outgoing := rel.Params.FromID == entityID
		incoming := rel.Params.ToID == entityID
		if (direction == store.DirectionOutgoing && !outgoing) ||
			(direction == store.DirectionIncoming && !incoming) ||
			(direction == store.DirectionBoth && !outgoing && !incoming) {
			continue
		}
		out = append(out, common.Relationship{
			ID:         rel.ID,
			FromID:     rel.Params.FromID,
			ToID:       rel.Params.ToID,
			Type:       rel.Params.Type,
			Confidence: rel.Params.Confidence,
		})
	}
	return out, nil
}

func (m *memoryStore) ExpandRelationships(ctx context.Context, entityIDs []string, types []common.RelationshipType) ([]common.Relationship, error) {
	ids := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		ids[id] = struct{}{}
	}
	var out []common.Relationship
	for _, rel := range m.relationships {
		if _, ok := ids[rel.Params.FromID]; !ok {
			continue
		}
		if len(types) > 0 && !containsType(types, rel.Params.Type) {
			continue
		}
		out = append(out, common.Relationship{
			ID:     rel.ID,
			FromID: rel.Params.FromID,
			ToID:   rel.Params.ToID,
			Type:   rel.Params.Type,
		})
	}
	return out, nil
}

func containsType(types []common.RelationshipType, t common.RelationshipType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func (m *memoryStore) QueryByPattern(ctx context.Context, label string, props map[string]any, limit int) ([]*common.Entity, error) {
	var out []*common.Entity
	for _, entity := range m.entities {
		if string(entity.Type) != label {
			continue
		}
		match := true
		for k, v := range common.NormalizeProperties(props) {
			if !reflect.DeepEqual(entity.Properties[k], v) {
				match = false
				break
			}
		}
		if match {
			clone := *entity
			out = append(out, &clone)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memoryStore) SetDocumentStatus(ctx context.Context, documentID string, status common.DocumentStatus, errorMessage string) error {
	entity, ok := m.entities[documentID]
	if !ok {
		return &common.PersistenceError{Op: "setDocumentStatus", Err: store.ErrNotFound}
	}
	entity.Properties["status"] = string(status)
	m.docErrors[documentID] = errorMessage
	return nil
}

func (m *memoryStore) entitiesOfType(t common.EntityType) []*common.Entity {
	var out []*common.Entity
	for _, entity := range m.entities {
		if entity.Type == t {
			out = append(out, entity)
		}
	}
	return out
}

// memoryFiles is a content-addressed in-memory DocumentStorage.
type memoryFiles struct {
	blobs map[string][]byte
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{blobs: make(map[string][]byte)}
}

func (f *memoryFiles) Store(ctx context.Context, fileName string, data []byte) (store.StoredFile, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	path := "mem://" + hash + "/" + fileName
	f.blobs[path] = data
	return store.StoredFile{Path: path, ContentHash: hash, Size: int64(len(data))}, nil
}

func (f *memoryFiles) Get(ctx context.Context, path string) ([]byte, error) {
	data, ok := f.blobs[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

// fakeProcessor returns fixed plain text, or fails.
type fakeProcessor struct {
	text string
	err  error
}

func (p *fakeProcessor) ProcessFile(ctx context.Context, fileName string, data []byte) (loader.ProcessedDocument, error) {
	if p.err != nil {
		return loader.ProcessedDocument{}, p.err
	}
	return loader.ProcessedDocument{
		DetectedType: loader.DocTypeFMEA,
		PlainText:    p.text,
		Metadata:     map[string]string{"format": "txt"},
	}, nil
}

// fakeExtractor returns a fixed candidate batch, or fails.
type fakeExtractor struct {
	result ExtractionResult
	err    error
}

func (e *fakeExtractor) Extract(ctx context.Context, input ExtractionInput) (ExtractionResult, error) {
	if e.err != nil {
		return ExtractionResult{}, e.err
	}
	result := e.result
	if result.ModelUsed == "" {
		result.ModelUsed = "test-model"
	}
	return result, nil
}

// failingIndexer always errors, for verifying the best-effort contract.
type failingIndexer struct {
	calls int
}

func (i *failingIndexer) IndexDocument(ctx context.Context, documentID, text string) error {
	i.calls++
	return errors.New("vector store unavailable")
}
