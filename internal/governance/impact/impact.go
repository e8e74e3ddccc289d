// Package impact classifies the risk significance of a change.
package impact

import (
	"encoding/json"
	"strconv"

	"qmsgov/internal/types"
)

// highChangeCount is the number of changed fields above which a change is MEDIUM
const highChangeCount = 3

var safetyCritical = map[types.EntityType]bool{
	types.EntityFailureMode:    true,
	types.EntityFailureControl: true,
	types.EntityControlItem:    true,
}

// Classify maps a change to its impact level. Rules are evaluated in
// order and the first match wins.
func Classify(entityType types.EntityType, kind types.ChangeKind, changed []string, newValue types.Snapshot) types.ImpactLevel {
	if kind == types.ChangeDelete {
		return types.ImpactHigh
	}

	schema := types.SchemaFor(entityType)
	if schema != nil {
		for _, field := range changed {
			cf, ok := schema.Critical(field)
			if !ok {
				continue
			}
			if v, ok := Numeric(newValue[field]); ok && v >= cf.Threshold {
				return types.ImpactCritical
			}
		}

		for _, field := range changed {
			if schema.IsHighImpact(field) {
				return types.ImpactHigh
			}
		}
	}

	if len(changed) > highChangeCount {
		return types.ImpactMedium
	}
	return types.ImpactLow
}

// RequiresApproval reports whether a change must go through an approval workflow
func RequiresApproval(entityType types.EntityType, kind types.ChangeKind, level types.ImpactLevel) bool {
	if level == types.ImpactHigh || level == types.ImpactCritical {
		return true
	}
	if kind == types.ChangeDelete {
		return true
	}
	return safetyCritical[entityType]
}

// AffectedModules returns the module tags touched by a change of the entity type
func AffectedModules(entityType types.EntityType) []string {
	schema := types.SchemaFor(entityType)
	if schema == nil {
		return []string{}
	}
	out := make([]string, len(schema.Modules))
	copy(out, schema.Modules)
	return out
}

// Numeric extracts a number from a snapshot value
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
