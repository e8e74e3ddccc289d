package repository

import (
	"context"
	"time"

	"qmsgov/internal/types"
)

// ChangeEventRepository defines change event storage operations
type ChangeEventRepository interface {
	Create(ctx context.Context, event *types.ChangeEvent) error
	Get(ctx context.Context, id string) (*types.ChangeEvent, error)
	// UpdateApprovalStatus moves the event to status when its current
	// status is one of from. An empty from updates unconditionally.
	UpdateApprovalStatus(ctx context.Context, id string, from []types.ChangeApprovalStatus, status types.ChangeApprovalStatus, completedAt *time.Time) error
	UpdatePropagation(ctx context.Context, id string, status types.PropagationStatus, errs []string) error
	List(ctx context.Context, projectID string, filter types.ChangeEventFilter) ([]*types.ChangeEvent, error)
}

// ApprovalRepository defines approval storage operations
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*types.Approval) error
	Get(ctx context.Context, id string) (*types.Approval, error)
	ListByChangeEvent(ctx context.Context, changeEventID string) ([]*types.Approval, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*types.Approval, error)
	ListPendingFor(ctx context.Context, userID, role string) ([]*types.Approval, error)
	// Transition applies update when the approval's status is one of from.
	// It returns ErrInvalidTransition when the status has moved on.
	Transition(ctx context.Context, id string, from []types.ApprovalStatus, update types.ApprovalUpdate) (*types.Approval, error)
}

// WorkflowRepository defines workflow definition storage operations
type WorkflowRepository interface {
	Create(ctx context.Context, def *types.WorkflowDefinition) error
	Get(ctx context.Context, id string) (*types.WorkflowDefinition, error)
	// ListActive returns the project's active definitions, newest first
	ListActive(ctx context.Context, projectID string) ([]*types.WorkflowDefinition, error)
}

// RuleRepository defines propagation rule storage operations
type RuleRepository interface {
	Create(ctx context.Context, rule *types.PropagationRule) error
	// ListActive returns active rules for the source, lowest priority first
	ListActive(ctx context.Context, projectID string, entityType types.EntityType, kind types.ChangeKind) ([]*types.PropagationRule, error)
}

// UserRepository defines user and role lookup operations
type UserRepository interface {
	Get(ctx context.Context, id string) (*types.User, error)
	ListActiveByRoles(ctx context.Context, roles []string) ([]*types.User, error)
	Upsert(ctx context.Context, user *types.User) error
}

// AuditRepository defines the append-only audit log
type AuditRepository interface {
	Append(ctx context.Context, entry *types.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*types.AuditEntry, error)
}

// Store bundles the repositories used by the governance engine
type Store struct {
	ChangeEvents ChangeEventRepository
	Approvals    ApprovalRepository
	Workflows    WorkflowRepository
	Rules        RuleRepository
	Users        UserRepository
	Audit        AuditRepository
}
