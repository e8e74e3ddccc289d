package types

import "time"

// ChangeApprovalStatus represents the approval state of a change event
type ChangeApprovalStatus string

const (
	ChangeApprovalNone     ChangeApprovalStatus = "NONE"
	ChangeApprovalPending  ChangeApprovalStatus = "PENDING"
	ChangeApprovalApproved ChangeApprovalStatus = "APPROVED"
	ChangeApprovalRejected ChangeApprovalStatus = "REJECTED"
)

// Terminal reports whether no further decision can change the status
func (s ChangeApprovalStatus) Terminal() bool {
	return s == ChangeApprovalApproved || s == ChangeApprovalRejected
}

// PropagationStatus represents the outcome of executing propagation rules
type PropagationStatus string

const (
	PropagationNone      PropagationStatus = "NONE"
	PropagationPending   PropagationStatus = "PENDING"
	PropagationCompleted PropagationStatus = "COMPLETED"
	PropagationFailed    PropagationStatus = "FAILED"
)

// ChangeEvent is the audit record of one tracked mutation.
// Only the approval, propagation and completion fields change after creation.
type ChangeEvent struct {
	ID                  string               `json:"id"`
	ProjectID           string               `json:"project_id"`
	EntityType          EntityType           `json:"entity_type"`
	EntityID            string               `json:"entity_id"`
	ChangeType          ChangeKind           `json:"change_type"`
	ChangedFields       []string             `json:"changed_fields"`
	OldValue            Snapshot             `json:"old_value,omitempty"`
	NewValue            Snapshot             `json:"new_value,omitempty"`
	ImpactLevel         ImpactLevel          `json:"impact_level"`
	AffectedModules     []string             `json:"affected_modules"`
	PropagationRequired bool                 `json:"propagation_required"`
	ApprovalRequired    bool                 `json:"approval_required"`
	ApprovalStatus      ChangeApprovalStatus `json:"approval_status"`
	PropagationStatus   PropagationStatus    `json:"propagation_status"`
	PropagationErrors   []string             `json:"propagation_errors,omitempty"`
	TriggeredBy         string               `json:"triggered_by"`
	BatchID             string               `json:"batch_id,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
}

// Mutation is the input of change tracking
type Mutation struct {
	ProjectID  string     `json:"project_id" validate:"required"`
	EntityType EntityType `json:"entity_type" validate:"required,entity_type"`
	EntityID   string     `json:"entity_id" validate:"required"`
	ChangeType ChangeKind `json:"change_type" validate:"required,change_kind"`
	OldValue   Snapshot   `json:"old_value,omitempty"`
	NewValue   Snapshot   `json:"new_value,omitempty"`
	ActorID    string     `json:"actor_id" validate:"required"`
	BatchID    string     `json:"batch_id,omitempty"`
}

// ChangeEventFilter narrows change event listings
type ChangeEventFilter struct {
	EntityType     EntityType           `json:"entity_type,omitempty"`
	EntityID       string               `json:"entity_id,omitempty"`
	ImpactLevel    ImpactLevel          `json:"impact_level,omitempty"`
	ApprovalStatus ChangeApprovalStatus `json:"approval_status,omitempty"`
	BatchID        string               `json:"batch_id,omitempty"`
	Limit          int                  `json:"limit,omitempty"`
	Offset         int                  `json:"offset,omitempty"`
}
