package common

import (
	"bytes"
	"encoding/json"
)

// identityProperties are the envelope fields excluded from structural
// comparison: they differ between versions of the same fact by design.
var identityProperties = map[string]struct{}{
	"id":        {},
	"createdAt": {},
	"updatedAt": {},
}

// NormalizeProperties returns a copy of props where values that cannot be
// stored as graph primitives (nested maps, structs, heterogeneous arrays)
// are replaced by their canonical JSON encoding. The same normalization is
// applied on the write path and the comparison path so stored and
// candidate property bags stay comparable.
func NormalizeProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	case []string, []int, []int64, []float64, []bool:
		return v
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// PropertiesEqual reports whether two property bags describe the same fact.
// Identity and timestamp fields are ignored, and both bags are round-
// tripped through canonical JSON so representations that differ only in
// property insertion order or numeric type compare as identical.
func PropertiesEqual(a, b map[string]any) bool {
	ca, okA := canonicalJSON(a)
	cb, okB := canonicalJSON(b)
	if !okA || !okB {
		return false
	}
	return bytes.Equal(ca, cb)
}

func canonicalJSON(props map[string]any) ([]byte, bool) {
	stripped := make(map[string]any, len(props))
	for k, v := range NormalizeProperties(props) {
		if _, skip := identityProperties[k]; skip {
			continue
		}
		stripped[k] = v
	}

	// Round-trip so int/float representations of the same number collapse.
	raw, err := json.Marshal(stripped)
	if err != nil {
		return nil, false
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, false
	}
	return canonical, true
}
