package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Payload is the typed counterpart of a candidate's open property bag.
// One variant exists per entity type, each carrying its required fields;
// everything else the extraction model supplied is kept in an Extra bag so
// no asserted information is lost. Converting a bag into a Payload is the
// exhaustive per-type required-property check.
type Payload interface {
	Type() EntityType
	// Key returns the business key that defines real-world identity for
	// deduplication. Document keys are content hashes; all other types key
	// on domain fields.
	Key() BusinessKey
	// KeyProperties returns the property subset the key is derived from,
	// in persisted-property naming, for store-side duplicate lookups.
	KeyProperties() map[string]any
	// Properties returns the full persisted property bag.
	Properties() map[string]any
}

type ProcessPayload struct {
	Name    string
	Version string
	Extra   map[string]any
}

func (p ProcessPayload) Type() EntityType { return EntityProcess }

func (p ProcessPayload) Key() BusinessKey {
	return BusinessKey{Type: EntityProcess, Key: joinKey(p.Name, p.Version)}
}

func (p ProcessPayload) KeyProperties() map[string]any {
	return map[string]any{"name": p.Name, "version": p.Version}
}

func (p ProcessPayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{"name": p.Name, "version": p.Version})
}

type AuditPayload struct {
	Name  string
	Extra map[string]any
}

func (p AuditPayload) Type() EntityType { return EntityAudit }

func (p AuditPayload) Key() BusinessKey {
	return BusinessKey{Type: EntityAudit, Key: p.Name}
}

func (p AuditPayload) KeyProperties() map[string]any {
	return map[string]any{"name": p.Name}
}

func (p AuditPayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{"name": p.Name})
}

type DocumentPayload struct {
	FileName    string
	ContentHash string
	StoragePath string
	Status      DocumentStatus
	Extra       map[string]any
}

func (p DocumentPayload) Type() EntityType { return EntityDocument }

func (p DocumentPayload) Key() BusinessKey {
	return BusinessKey{Type: EntityDocument, Key: p.ContentHash}
}

func (p DocumentPayload) KeyProperties() map[string]any {
	return map[string]any{"contentHash": p.ContentHash}
}

func (p DocumentPayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{
		"fileName":    p.FileName,
		"contentHash": p.ContentHash,
		"storagePath": p.StoragePath,
		"status":      string(p.Status),
	})
}

type FailureModePayload struct {
	Code        string
	Description string
	Extra       map[string]any
}

func (p FailureModePayload) Type() EntityType { return EntityFailureMode }

func (p FailureModePayload) Key() BusinessKey {
	return BusinessKey{Type: EntityFailureMode, Key: p.Code}
}

func (p FailureModePayload) KeyProperties() map[string]any {
	return map[string]any{"code": p.Code}
}

func (p FailureModePayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{"code": p.Code, "description": p.Description})
}

type RiskPayload struct {
	Name        string
	Level       string
	Description string
	Extra       map[string]any
}

func (p RiskPayload) Type() EntityType { return EntityRisk }

func (p RiskPayload) Key() BusinessKey {
	return BusinessKey{Type: EntityRisk, Key: p.Name}
}

func (p RiskPayload) KeyProperties() map[string]any {
	return map[string]any{"name": p.Name}
}

func (p RiskPayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{
		"name":        p.Name,
		"level":       p.Level,
		"description": p.Description,
	})
}

type ControlPayload struct {
	Code        string
	Description string
	Extra       map[string]any
}

func (p ControlPayload) Type() EntityType { return EntityControl }

func (p ControlPayload) Key() BusinessKey {
	return BusinessKey{Type: EntityControl, Key: p.Code}
}

func (p ControlPayload) KeyProperties() map[string]any {
	return map[string]any{"code": p.Code}
}

func (p ControlPayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{"code": p.Code, "description": p.Description})
}

type FindingPayload struct {
	Code        string
	Description string
	Extra       map[string]any
}

func (p FindingPayload) Type() EntityType { return EntityFinding }

func (p FindingPayload) Key() BusinessKey {
	return BusinessKey{Type: EntityFinding, Key: p.Code}
}

func (p FindingPayload) KeyProperties() map[string]any {
	return map[string]any{"code": p.Code}
}

func (p FindingPayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{"code": p.Code, "description": p.Description})
}

type RequirementPayload struct {
	Code        string
	Description string
	Extra       map[string]any
}

func (p RequirementPayload) Type() EntityType { return EntityRequirement }

func (p RequirementPayload) Key() BusinessKey {
	return BusinessKey{Type: EntityRequirement, Key: p.Code}
}

func (p RequirementPayload) KeyProperties() map[string]any {
	return map[string]any{"code": p.Code}
}

func (p RequirementPayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{"code": p.Code, "description": p.Description})
}

type ProcedureStepPayload struct {
	StepNumber  int
	ProcessID   string
	Instruction string
	Extra       map[string]any
}

func (p ProcedureStepPayload) Type() EntityType { return EntityProcedureStep }

func (p ProcedureStepPayload) Key() BusinessKey {
	return BusinessKey{Type: EntityProcedureStep, Key: joinKey(strconv.Itoa(p.StepNumber), p.ProcessID)}
}

func (p ProcedureStepPayload) KeyProperties() map[string]any {
	return map[string]any{"stepNumber": p.StepNumber, "processId": p.ProcessID}
}

func (p ProcedureStepPayload) Properties() map[string]any {
	return mergeProps(p.Extra, map[string]any{
		"stepNumber":  p.StepNumber,
		"processId":   p.ProcessID,
		"instruction": p.Instruction,
	})
}

// PayloadFromProperties converts an open candidate property bag into the
// typed payload for its entity type, failing when a required property is
// missing or empty. This is the single place per-type rules live.
func PayloadFromProperties(t EntityType, props map[string]any) (Payload, error) {
	switch t {
	case EntityProcess:
		name, err := requireString(props, "name", t)
		if err != nil {
			return nil, err
		}
		version, err := requireString(props, "version", t)
		if err != nil {
			return nil, err
		}
		return ProcessPayload{Name: name, Version: version, Extra: extraProps(props, "name", "version")}, nil
	case EntityAudit:
		name, err := requireString(props, "name", t)
		if err != nil {
			return nil, err
		}
		return AuditPayload{Name: name, Extra: extraProps(props, "name")}, nil
	case EntityDocument:
		hash, err := requireString(props, "contentHash", t)
		if err != nil {
			return nil, err
		}
		return DocumentPayload{
			FileName:    optString(props, "fileName"),
			ContentHash: hash,
			StoragePath: optString(props, "storagePath"),
			Status:      DocumentStatus(optString(props, "status")),
			Extra:       extraProps(props, "fileName", "contentHash", "storagePath", "status"),
		}, nil
	case EntityFailureMode:
		code, err := requireString(props, "code", t)
		if err != nil {
			return nil, err
		}
		desc, err := requireString(props, "description", t)
		if err != nil {
			return nil, err
		}
		return FailureModePayload{Code: code, Description: desc, Extra: extraProps(props, "code", "description")}, nil
	case EntityRisk:
		name, err := requireString(props, "name", t)
		if err != nil {
			return nil, err
		}
		level, err := requireString(props, "level", t)
		if err != nil {
			return nil, err
		}
		desc, err := requireString(props, "description", t)
		if err != nil {
			return nil, err
		}
		return RiskPayload{Name: name, Level: level, Description: desc, Extra: extraProps(props, "name", "level", "description")}, nil
	case EntityControl:
		code, err := requireString(props, "code", t)
		if err != nil {
			return nil, err
		}
		return ControlPayload{Code: code, Description: optString(props, "description"), Extra: extraProps(props, "code", "description")}, nil
	case EntityFinding:
		code, err := requireString(props, "code", t)
		if err != nil {
			return nil, err
		}
		desc, err := requireString(props, "description", t)
		if err != nil {
			return nil, err
		}
		return FindingPayload{Code: code, Description: desc, Extra: extraProps(props, "code", "description")}, nil
	case EntityRequirement:
		code, err := requireString(props, "code", t)
		if err != nil {
			return nil, err
		}
		return RequirementPayload{Code: code, Description: optString(props, "description"), Extra: extraProps(props, "code", "description")}, nil
	case EntityProcedureStep:
		step, err := requireInt(props, "stepNumber", t)
		if err != nil {
			return nil, err
		}
		processID, err := requireString(props, "processId", t)
		if err != nil {
			return nil, err
		}
		return ProcedureStepPayload{
			StepNumber:  step,
			ProcessID:   processID,
			Instruction: optString(props, "instruction"),
			Extra:       extraProps(props, "stepNumber", "processId", "instruction"),
		}, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", t)
}

// ParseEntityRef parses the extraction model's "Type:businessKey" reference
// format into a typed reference.
func ParseEntityRef(s string) (EntityRef, error) {
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return EntityRef{}, fmt.Errorf("malformed entity reference %q", s)
	}
	t := EntityType(strings.TrimSpace(s[:idx]))
	if !IsKnownEntityType(t) {
		return EntityRef{}, fmt.Errorf("entity reference %q has unknown type", s)
	}
	return EntityRef{Type: t, Key: strings.TrimSpace(s[idx+1:])}, nil
}

// BusinessKeyFor computes the business key of a candidate property bag
// without running the full required-property validation.
func BusinessKeyFor(t EntityType, props map[string]any) (BusinessKey, error) {
	p, err := PayloadFromProperties(t, props)
	if err != nil {
		return BusinessKey{}, err
	}
	return p.Key(), nil
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "|")
}

func mergeProps(extra map[string]any, typed map[string]any) map[string]any {
	out := make(map[string]any, len(extra)+len(typed))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range typed {
		out[k] = v
	}
	return out
}

func extraProps(props map[string]any, consumed ...string) map[string]any {
	out := make(map[string]any)
	for k, v := range props {
		skip := false
		for _, c := range consumed {
			if k == c {
				skip = true
				break
			}
		}
		if !skip {
			out[k] = v
		}
	}
	return out
}

func requireString(props map[string]any, key string, t EntityType) (string, error) {
	s := optString(props, key)
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s candidate is missing required property %q", t, key)
	}
	return s, nil
}

func optString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return formatNumber(s)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprintf("%v", v)
}

func requireInt(props map[string]any, key string, t EntityType) (int, error) {
	v, ok := props[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s candidate is missing required property %q", t, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s candidate property %q must be an integer", t, key)
		}
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%s candidate property %q must be an integer", t, key)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("%s candidate property %q must be an integer", t, key)
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SortedPropertyKeys returns the property names of a bag in lexical order.
// Used by stores that need deterministic parameter ordering.
func SortedPropertyKeys(props map[string]any) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
