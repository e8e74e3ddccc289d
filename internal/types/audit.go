package types

import "time"

// Audit actions
const (
	AuditEmergencyBypass  = "EMERGENCY_BYPASS"
	AuditWorkflowCreated  = "WORKFLOW_CREATED"
	AuditRuleCreated      = "PROPAGATION_RULE_CREATED"
	AuditApprovalDecision = "APPROVAL_DECISION"
)

// AuditEntry is an append-only record of a privileged action
type AuditEntry struct {
	ID         string         `json:"id" bson:"_id"`
	Action     string         `json:"action" bson:"action"`
	EntityType string         `json:"entity_type" bson:"entity_type"`
	EntityID   string         `json:"entity_id" bson:"entity_id"`
	ActorID    string         `json:"actor_id" bson:"actor_id"`
	Reason     string         `json:"reason,omitempty" bson:"reason,omitempty"`
	Details    map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
}
