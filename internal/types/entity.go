package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EntityType represents a tracked quality entity type
type EntityType string

const (
	EntityFMEA           EntityType = "FMEA"
	EntityProcessFlow    EntityType = "PROCESS_FLOW"
	EntityProcessStep    EntityType = "PROCESS_STEP"
	EntityFailureMode    EntityType = "FAILURE_MODE"
	EntityFailureCause   EntityType = "FAILURE_CAUSE"
	EntityFailureControl EntityType = "FAILURE_CONTROL"
	EntityControlPlan    EntityType = "CONTROL_PLAN"
	EntityControlItem    EntityType = "CONTROL_ITEM"
)

// EntityTypes lists every tracked entity type
var EntityTypes = []EntityType{
	EntityFMEA,
	EntityProcessFlow,
	EntityProcessStep,
	EntityFailureMode,
	EntityFailureCause,
	EntityFailureControl,
	EntityControlPlan,
	EntityControlItem,
}

// Valid reports whether the entity type is known
func (t EntityType) Valid() bool {
	_, ok := schemas[t]
	return ok
}

// ChangeKind represents the kind of mutation
type ChangeKind string

const (
	ChangeCreate ChangeKind = "CREATE"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// Valid reports whether the change kind is known
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// ImpactLevel represents the risk significance of a change
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "LOW"
	ImpactMedium   ImpactLevel = "MEDIUM"
	ImpactHigh     ImpactLevel = "HIGH"
	ImpactCritical ImpactLevel = "CRITICAL"
)

// Valid reports whether the impact level is known
func (l ImpactLevel) Valid() bool {
	switch l {
	case ImpactLow, ImpactMedium, ImpactHigh, ImpactCritical:
		return true
	}
	return false
}

// Snapshot is an entity value as an opaque field map.
// The fields it may carry are documented by the entity schema.
type Snapshot map[string]any

// Fields returns the snapshot field names in sorted order
func (s Snapshot) Fields() []string {
	fields := make([]string, 0, len(s))
	for k := range s {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Clone returns a deep copy of the snapshot via its JSON form
func (s Snapshot) Clone() (Snapshot, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return out, nil
}

// CriticalField is a field whose new value crossing Threshold makes a change critical
type CriticalField struct {
	Name      string
	Threshold float64
}

// EntitySchema documents the fields of an entity snapshot
type EntitySchema struct {
	Type            EntityType
	Fields          []string
	CriticalFields  []CriticalField
	HighImpact      []string
	UnorderedFields []string
	Modules         []string
}

// IsHighImpact checks if the field is in the high-impact list
func (s *EntitySchema) IsHighImpact(field string) bool {
	return contains(s.HighImpact, field)
}

// IsUnordered checks if the field holds an unordered collection
func (s *EntitySchema) IsUnordered(field string) bool {
	return contains(s.UnorderedFields, field)
}

// Critical returns the critical field definition for a field name
func (s *EntitySchema) Critical(field string) (CriticalField, bool) {
	for _, cf := range s.CriticalFields {
		if cf.Name == field {
			return cf, true
		}
	}
	return CriticalField{}, false
}

// Module tags
const (
	ModuleFMEA        = "FMEA"
	ModuleProcessFlow = "PROCESS_FLOW"
	ModuleControlPlan = "CONTROL_PLAN"
)

var schemas = map[EntityType]*EntitySchema{
	EntityFMEA: {
		Type:            EntityFMEA,
		Fields:          []string{"title", "description", "scope", "status", "fmeaType", "teamMembers", "revision"},
		HighImpact:      []string{"scope", "status", "fmeaType"},
		UnorderedFields: []string{"teamMembers"},
		Modules:         []string{ModuleFMEA},
	},
	EntityProcessFlow: {
		Type:       EntityProcessFlow,
		Fields:     []string{"name", "description", "processType", "status", "revision"},
		HighImpact: []string{"status", "processType"},
		Modules:    []string{ModuleProcessFlow, ModuleFMEA},
	},
	EntityProcessStep: {
		Type:            EntityProcessStep,
		Fields:          []string{"name", "stepNumber", "stepType", "description", "qualityRequirements", "safetyRequirements", "cycleTime"},
		HighImpact:      []string{"stepType", "qualityRequirements", "safetyRequirements"},
		UnorderedFields: []string{"qualityRequirements", "safetyRequirements"},
		Modules:         []string{ModuleProcessFlow, ModuleFMEA, ModuleControlPlan},
	},
	EntityFailureMode: {
		Type:            EntityFailureMode,
		Fields:          []string{"failureMode", "effects", "severityRating", "classification"},
		CriticalFields:  []CriticalField{{Name: "severityRating", Threshold: 8}},
		HighImpact:      []string{"severityRating", "failureMode", "effects"},
		UnorderedFields: []string{"effects"},
		Modules:         []string{ModuleFMEA, ModuleControlPlan},
	},
	EntityFailureCause: {
		Type:           EntityFailureCause,
		Fields:         []string{"cause", "occurrenceRating", "mechanism"},
		CriticalFields: []CriticalField{{Name: "occurrenceRating", Threshold: 7}},
		HighImpact:     []string{"occurrenceRating", "cause"},
		Modules:        []string{ModuleFMEA, ModuleControlPlan},
	},
	EntityFailureControl: {
		Type:           EntityFailureControl,
		Fields:         []string{"control", "controlType", "detectionRating"},
		CriticalFields: []CriticalField{{Name: "detectionRating", Threshold: 8}},
		HighImpact:     []string{"detectionRating", "controlType"},
		Modules:        []string{ModuleFMEA, ModuleControlPlan},
	},
	EntityControlPlan: {
		Type:       EntityControlPlan,
		Fields:     []string{"title", "planType", "status", "revision"},
		HighImpact: []string{"status", "planType"},
		Modules:    []string{ModuleControlPlan},
	},
	EntityControlItem: {
		Type:       EntityControlItem,
		Fields:     []string{"characteristic", "specification", "controlMethod", "sampleSize", "frequency", "reactionPlan"},
		HighImpact: []string{"specification", "controlMethod", "reactionPlan"},
		Modules:    []string{ModuleControlPlan},
	},
}

// SchemaFor returns the schema for an entity type, or nil if unknown
func SchemaFor(t EntityType) *EntitySchema {
	return schemas[t]
}

// ModuleFor maps a target entity type to its module tag
func ModuleFor(t EntityType) string {
	switch t {
	case EntityFMEA, EntityFailureMode, EntityFailureCause, EntityFailureControl:
		return ModuleFMEA
	case EntityProcessFlow, EntityProcessStep:
		return ModuleProcessFlow
	case EntityControlPlan, EntityControlItem:
		return ModuleControlPlan
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
