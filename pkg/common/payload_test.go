package common

import (
	"reflect"
	"testing"
)

func TestPayloadFromProperties(t *testing.T) {
	tests := []struct {
		name       string
		entityType EntityType
		props      map[string]any
		wantKey    BusinessKey
		wantErr    bool
	}{
		{
			name:       "process keyed by name and version",
			entityType: EntityProcess,
			props:      map[string]any{"name": "CNC milling", "version": "2.1"},
			wantKey:    BusinessKey{Type: EntityProcess, Key: "CNC milling|2.1"},
		},
		{
			name:       "process missing version",
			entityType: EntityProcess,
			props:      map[string]any{"name": "CNC milling"},
			wantErr:    true,
		},
		{
			name:       "failure mode keyed by code",
			entityType: EntityFailureMode,
			props:      map[string]any{"code": "FM-01", "description": "bearing wear"},
			wantKey:    BusinessKey{Type: EntityFailureMode, Key: "FM-01"},
		},
		{
			name:       "failure mode missing description",
			entityType: EntityFailureMode,
			props:      map[string]any{"code": "FM-01"},
			wantErr:    true,
		},
		{
			name:       "risk requires level and description",
			entityType: EntityRisk,
			props:      map[string]any{"name": "RISK-1", "description": "spindle seizure"},
			wantErr:    true,
		},
		{
			name:       "risk complete",
			entityType: EntityRisk,
			props:      map[string]any{"name": "RISK-1", "level": "high", "description": "spindle seizure"},
			wantKey:    BusinessKey{Type: EntityRisk, Key: "RISK-1"},
		},
		{
			name:       "control description optional",
			entityType: EntityControl,
			props:      map[string]any{"code": "CTRL-1"},
			wantKey:    BusinessKey{Type: EntityControl, Key: "CTRL-1"},
		},
		{
			name:       "document keyed by content hash",
			entityType: EntityDocument,
			props:      map[string]any{"contentHash": "abc123", "fileName": "fmea.pdf"},
			wantKey:    BusinessKey{Type: EntityDocument, Key: "abc123"},
		},
		{
			name:       "procedure step composite key",
			entityType: EntityProcedureStep,
			props:      map[string]any{"stepNumber": 3, "processId": "proc-7", "instruction": "torque to spec"},
			wantKey:    BusinessKey{Type: EntityProcedureStep, Key: "3|proc-7"},
		},
		{
			name:       "procedure step number from JSON float",
			entityType: EntityProcedureStep,
			props:      map[string]any{"stepNumber": float64(3), "processId": "proc-7"},
			wantKey:    BusinessKey{Type: EntityProcedureStep, Key: "3|proc-7"},
		},
		{
			name:       "procedure step fractional number rejected",
			entityType: EntityProcedureStep,
			props:      map[string]any{"stepNumber": 3.5, "processId": "proc-7"},
			wantErr:    true,
		},
		{
			name:       "whitespace-only required property rejected",
			entityType: EntityAudit,
			props:      map[string]any{"name": "   "},
			wantErr:    true,
		},
		{
			name:       "unknown type rejected",
			entityType: "Widget",
			props:      map[string]any{"name": "x"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := PayloadFromProperties(tt.entityType, tt.props)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := payload.Key(); got != tt.wantKey {
				t.Errorf("key = %+v, want %+v", got, tt.wantKey)
			}
		})
	}
}

func TestPayloadPreservesExtraProperties(t *testing.T) {
	payload, err := PayloadFromProperties(EntityFailureMode, map[string]any{
		"code":        "FM-01",
		"description": "bearing wear",
		"severity":    8,
		"detection":   "vibration analysis",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	props := payload.Properties()
	want := map[string]any{
		"code":        "FM-01",
		"description": "bearing wear",
		"severity":    8,
		"detection":   "vibration analysis",
	}
	if !reflect.DeepEqual(props, want) {
		t.Errorf("properties = %v, want %v", props, want)
	}
}

func TestParseEntityRef(t *testing.T) {
	tests := []struct {
		input   string
		want    EntityRef
		wantErr bool
	}{
		{input: "FailureMode:FM-01", want: EntityRef{Type: EntityFailureMode, Key: "FM-01"}},
		{input: "Process:CNC milling|2.1", want: EntityRef{Type: EntityProcess, Key: "CNC milling|2.1"}},
		{input: "Risk: spindle seizure", want: EntityRef{Type: EntityRisk, Key: "spindle seizure"}},
		{input: "FM-01", wantErr: true},
		{input: ":FM-01", wantErr: true},
		{input: "FailureMode:", wantErr: true},
		{input: "Widget:w-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEntityRef(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseEntityRef(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBusinessKeyForMatchesPayloadKey(t *testing.T) {
	props := map[string]any{"code": "REQ-9", "description": "guard interlock required"}
	key, err := BusinessKeyFor(EntityRequirement, props)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, _ := PayloadFromProperties(EntityRequirement, props)
	if key != payload.Key() {
		t.Errorf("BusinessKeyFor = %+v, payload key = %+v", key, payload.Key())
	}
}
