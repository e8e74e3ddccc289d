package service

import (
	"context"
	"fmt"

	"qmsgov/internal/governance/propagation"
	"qmsgov/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartApprovalProcess starts the workflow of a recorded change event
func (s *Service) StartApprovalProcess(ctx context.Context, changeEventID string) (*types.WorkflowExecution, error) {
	return s.workflows.StartApprovalProcess(ctx, changeEventID)
}

// ProcessApprovalDecision records an approver's decision
func (s *Service) ProcessApprovalDecision(ctx context.Context, d types.Decision) (*types.WorkflowExecution, error) {
	if err := s.validator.Struct(&d); err != nil {
		return nil, err
	}
	return s.workflows.ProcessApprovalDecision(ctx, d)
}

// BypassApproval approves a change event without further decisions
func (s *Service) BypassApproval(ctx context.Context, changeEventID, actorID, reason string) (*types.WorkflowExecution, error) {
	return s.workflows.BypassApproval(ctx, changeEventID, actorID, reason)
}

// ProcessOverdueApprovals runs one overdue sweep outside the schedule
func (s *Service) ProcessOverdueApprovals(ctx context.Context) (int, error) {
	res, err := s.sweeper.RunOnce(ctx)
	if res == nil {
		return 0, err
	}
	return res.Escalated, err
}

// GetWorkflowStatus returns the workflow execution of a change event
func (s *Service) GetWorkflowStatus(ctx context.Context, changeEventID string) (*types.WorkflowExecution, error) {
	return s.workflows.GetWorkflowStatus(ctx, changeEventID)
}

// CreateWorkflow validates and stores a workflow definition
func (s *Service) CreateWorkflow(ctx context.Context, def *types.WorkflowDefinition) (string, error) {
	if err := s.validator.Struct(def); err != nil {
		return "", err
	}
	return s.workflows.CreateWorkflow(ctx, def)
}

// CreatePropagationRule validates and stores a propagation rule. Field
// patterns must compile.
func (s *Service) CreatePropagationRule(ctx context.Context, rule *types.PropagationRule, actorID string) (string, error) {
	if err := s.validator.Struct(rule); err != nil {
		return "", err
	}
	if _, err := propagation.Compile(rule); err != nil {
		return "", err
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.CreatedAt = s.now().UTC()

	if err := s.store.Rules.Create(ctx, rule); err != nil {
		return "", fmt.Errorf("failed to create propagation rule: %w", err)
	}

	entry := &types.AuditEntry{
		ID:         uuid.NewString(),
		Action:     types.AuditRuleCreated,
		EntityType: "PROPAGATION_RULE",
		EntityID:   rule.ID,
		ActorID:    actorID,
		Details: map[string]any{
			"project_id":         rule.ProjectID,
			"name":               rule.Name,
			"source_entity_type": rule.SourceEntityType,
			"source_change_type": rule.SourceChangeType,
			"target_entity_type": rule.TargetEntityType,
			"target_action":      rule.TargetAction,
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Audit.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append audit entry",
			zap.String("action", entry.Action),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err))
	}

	s.logger.Info("Propagation rule created",
		zap.String("rule_id", rule.ID),
		zap.String("project_id", rule.ProjectID),
		zap.String("name", rule.Name))
	return rule.ID, nil
}

// GetChangeEvent returns one change event
func (s *Service) GetChangeEvent(ctx context.Context, id string) (*types.ChangeEvent, error) {
	return s.store.ChangeEvents.Get(ctx, id)
}

// ListChangeEvents returns a project's change events, newest first
func (s *Service) ListChangeEvents(ctx context.Context, projectID string, filter types.ChangeEventFilter) ([]*types.ChangeEvent, error) {
	if filter.Limit <= 0 || filter.Limit > s.config.Database.MaxQueryRows {
		filter.Limit = s.config.Database.MaxQueryRows
	}
	return s.store.ChangeEvents.List(ctx, projectID, filter)
}

// ListApprovals returns the approvals of a change event
func (s *Service) ListApprovals(ctx context.Context, changeEventID string) ([]*types.Approval, error) {
	if _, err := s.store.ChangeEvents.Get(ctx, changeEventID); err != nil {
		return nil, err
	}
	return s.store.Approvals.ListByChangeEvent(ctx, changeEventID)
}

// ListPendingApprovals returns the PENDING approvals assigned to the user
// directly or through their role
func (s *Service) ListPendingApprovals(ctx context.Context, userID string) ([]*types.Approval, error) {
	user, err := s.store.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.Approvals.ListPendingFor(ctx, user.ID, user.Role)
}

// AuditTrail returns the audit entries of an entity, oldest first
func (s *Service) AuditTrail(ctx context.Context, entityType, entityID string) ([]*types.AuditEntry, error) {
	return s.store.Audit.ListByEntity(ctx, entityType, entityID)
}

// UpsertUser creates or updates a user
func (s *Service) UpsertUser(ctx context.Context, user *types.User) error {
	if err := s.validator.Struct(user); err != nil {
		return err
	}
	if err := s.store.Users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// Authorize returns the user when it is active and holds one of roles
func (s *Service) Authorize(ctx context.Context, userID string, roles ...string) (*types.User, error) {
	user, err := s.store.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive || !user.HasRole(roles...) {
		return nil, fmt.Errorf("%w: user %s lacks a required role", types.ErrUnauthorized, userID)
	}
	return user, nil
}

// AdminRoles returns the roles allowed to administer governance
func (s *Service) AdminRoles() []string {
	return s.config.Governance.AdminRoles
}
