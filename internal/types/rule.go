package types

import "time"

// PropagationRule describes a downstream action triggered by a matching change
type PropagationRule struct {
	ID               string     `json:"id" yaml:"id"`
	ProjectID        string     `json:"project_id" yaml:"project_id" validate:"required"`
	Name             string     `json:"name" yaml:"name" validate:"required"`
	SourceEntityType EntityType `json:"source_entity_type" yaml:"source_entity_type" validate:"required,entity_type"`
	SourceChangeType ChangeKind `json:"source_change_type" yaml:"source_change_type" validate:"required,change_kind"`
	TargetEntityType EntityType `json:"target_entity_type" yaml:"target_entity_type" validate:"required,entity_type"`
	TargetAction     string     `json:"target_action" yaml:"target_action" validate:"required"`
	FieldPatterns    []string   `json:"field_patterns,omitempty" yaml:"field_patterns"`
	Priority         int        `json:"priority" yaml:"priority"`
	RequiresApproval bool       `json:"requires_approval" yaml:"requires_approval"`
	IsActive         bool       `json:"is_active" yaml:"is_active"`
	CreatedAt        time.Time  `json:"created_at" yaml:"-"`
}
