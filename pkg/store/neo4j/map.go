package neo4j

import (
	"time"

	"github.com/EHS-Labs/sage/backend/pkg/common"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// envelope property names owned by the store, kept out of the payload bag
// when reading nodes back.
var envelopeProps = map[string]struct{}{
	"id":        {},
	"createdAt": {},
	"updatedAt": {},
}

func entityToProps(e *common.Entity) map[string]any {
	props := common.NormalizeProperties(e.Properties)
	out := make(map[string]any, len(props)+3)
	for k, v := range props {
		out[k] = v
	}
	out["id"] = e.ID
	out["createdAt"] = e.CreatedAt.UTC().Format(time.RFC3339Nano)
	out["updatedAt"] = e.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return out
}

func entityFromNode(node dbtype.Node) *common.Entity {
	e := &common.Entity{
		Properties: make(map[string]any),
	}
	for _, label := range node.Labels {
		if label != "Entity" {
			e.Type = common.EntityType(label)
		}
	}
	for k, v := range node.Props {
		if _, isEnvelope := envelopeProps[k]; isEnvelope {
			continue
		}
		e.Properties[k] = v
	}
	e.ID = strProp(node.Props, "id")
	e.CreatedAt = timeProp(node.Props, "createdAt")
	e.UpdatedAt = timeProp(node.Props, "updatedAt")
	return e
}

func extractionToProps(ext common.Extraction) map[string]any {
	props := map[string]any{
		"id":          ext.ID,
		"documentId":  ext.DocumentID,
		"extractedBy": ext.ExtractedBy,
		"extractedAt": ext.ExtractedAt.UTC().Format(time.RFC3339Nano),
		"confidence":  ext.Confidence,
		"section":     ext.Locator.Section,
	}
	if ext.Locator.Page > 0 {
		props["page"] = ext.Locator.Page
	}
	if ext.Locator.LineStart > 0 {
		props["lineStart"] = ext.Locator.LineStart
		props["lineEnd"] = ext.Locator.LineEnd
	}
	return props
}

func extractionFromNode(node dbtype.Node) common.Extraction {
	return common.Extraction{
		ID:          strProp(node.Props, "id"),
		DocumentID:  strProp(node.Props, "documentId"),
		ExtractedBy: strProp(node.Props, "extractedBy"),
		ExtractedAt: timeProp(node.Props, "extractedAt"),
		Confidence:  floatProp(node.Props, "confidence"),
		Locator: common.SourceLocator{
			Section:   strProp(node.Props, "section"),
			Page:      intProp(node.Props, "page"),
			LineStart: intProp(node.Props, "lineStart"),
			LineEnd:   intProp(node.Props, "lineEnd"),
		},
	}
}

func relationshipFromRecord(relType string, props map[string]any, fromID, toID string) common.Relationship {
	rel := common.Relationship{
		ID:           strProp(props, "id"),
		FromID:       fromID,
		ToID:         toID,
		Type:         common.RelationshipType(relType),
		Confidence:   floatProp(props, "confidence"),
		ExtractionID: strProp(props, "extractionId"),
	}
	extra := make(map[string]any)
	for k, v := range props {
		switch k {
		case "id", "confidence", "extractionId":
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		rel.Properties = extra
	}
	return rel
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func intProp(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func timeProp(props map[string]any, key string) time.Time {
	s := strProp(props, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// sanitizeLabel restricts a label or relationship type to characters that
// are safe to interpolate into Cypher. Inputs come from closed enums, this
// is a guard against future callers.
func sanitizeLabel(s string) string {
	safe := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	return string(safe)
}
