package common

import (
	"reflect"
	"testing"
)

func TestPropertiesEqual(t *testing.T) {
	tests := []struct {
		name string
		a    map[string]any
		b    map[string]any
		want bool
	}{
		{
			name: "identical bags",
			a:    map[string]any{"code": "FM-01", "description": "bearing wear"},
			b:    map[string]any{"code": "FM-01", "description": "bearing wear"},
			want: true,
		},
		{
			name: "different value",
			a:    map[string]any{"code": "FM-01", "description": "bearing wear"},
			b:    map[string]any{"code": "FM-01", "description": "bearing wear, accelerated"},
			want: false,
		},
		{
			name: "missing key",
			a:    map[string]any{"code": "FM-01", "description": "bearing wear"},
			b:    map[string]any{"code": "FM-01"},
			want: false,
		},
		{
			name: "identity and timestamp fields ignored",
			a:    map[string]any{"code": "FM-01", "id": "abc", "createdAt": "2026-01-01T00:00:00Z"},
			b:    map[string]any{"code": "FM-01", "id": "xyz", "updatedAt": "2026-02-02T00:00:00Z"},
			want: true,
		},
		{
			name: "int and float of the same number collapse",
			a:    map[string]any{"severity": 8},
			b:    map[string]any{"severity": float64(8)},
			want: true,
		},
		{
			name: "nested map order irrelevant",
			a:    map[string]any{"matrix": map[string]any{"likelihood": 3, "impact": 4}},
			b:    map[string]any{"matrix": map[string]any{"impact": 4, "likelihood": 3}},
			want: true,
		},
		{
			name: "nested difference detected",
			a:    map[string]any{"matrix": map[string]any{"likelihood": 3, "impact": 4}},
			b:    map[string]any{"matrix": map[string]any{"likelihood": 3, "impact": 5}},
			want: false,
		},
		{
			name: "both empty",
			a:    map[string]any{},
			b:    map[string]any{},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PropertiesEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("PropertiesEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPropertiesEqualAfterNormalization(t *testing.T) {
	// The write path stores nested values as canonical JSON strings. A bag
	// read back from the store must still compare equal to the raw
	// candidate bag it was written from.
	raw := map[string]any{
		"code":   "FM-01",
		"matrix": map[string]any{"likelihood": 3, "impact": 4},
	}
	stored := NormalizeProperties(raw)

	if _, isString := stored["matrix"].(string); !isString {
		t.Fatal("nested map should normalize to a JSON string")
	}
	if !PropertiesEqual(stored, raw) {
		t.Error("stored and raw representations must compare equal")
	}
}

func TestNormalizeProperties(t *testing.T) {
	got := NormalizeProperties(map[string]any{
		"name":   "CNC milling",
		"count":  3,
		"score":  0.7,
		"active": true,
		"tags":   []string{"safety", "mechanical"},
		"nested": map[string]any{"a": 1},
	})

	if got["name"] != "CNC milling" || got["count"] != 3 || got["score"] != 0.7 || got["active"] != true {
		t.Errorf("primitives must pass through unchanged: %v", got)
	}
	if !reflect.DeepEqual(got["tags"], []string{"safety", "mechanical"}) {
		t.Errorf("primitive slices must pass through unchanged: %v", got["tags"])
	}
	if got["nested"] != `{"a":1}` {
		t.Errorf("nested map = %v, want JSON string", got["nested"])
	}
}

func TestNormalizePropertiesNil(t *testing.T) {
	if NormalizeProperties(nil) != nil {
		t.Error("nil bag must stay nil")
	}
}
