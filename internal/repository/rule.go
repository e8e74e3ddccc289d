package repository

import (
	"context"
	"fmt"

	"qmsgov/internal/database"
	"qmsgov/internal/types"

	"go.uber.org/zap"
)

const ruleColumns = `id, project_id, name, source_entity_type, source_change_type,
	target_entity_type, target_action, field_patterns, priority,
	requires_approval, is_active, created_at`

// ruleRepository represents propagation rule repository implementation
type ruleRepository struct {
	db     database.Interface
	logger *zap.Logger
}

// NewRuleRepository creates new propagation rule repository
func NewRuleRepository(db database.Interface, logger *zap.Logger) RuleRepository {
	return &ruleRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a propagation rule
func (r *ruleRepository) Create(ctx context.Context, rule *types.PropagationRule) error {
	patterns, err := nullableJSON(rule.FieldPatterns, len(rule.FieldPatterns) == 0)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`INSERT INTO propagation_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.ProjectID, rule.Name, string(rule.SourceEntityType), string(rule.SourceChangeType),
		string(rule.TargetEntityType), rule.TargetAction, patterns, rule.Priority,
		rule.RequiresApproval, rule.IsActive, rule.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save propagation rule: %w", err)
	}
	return nil
}

// ListActive returns active rules for a source entity type and change kind
func (r *ruleRepository) ListActive(ctx context.Context, projectID string, entityType types.EntityType, kind types.ChangeKind) ([]*types.PropagationRule, error) {
	qb := database.NewQueryBuilder(r.db.Driver()).
		Select(ruleColumns).
		From("propagation_rules").
		Where("project_id = ?", projectID).
		Where("source_entity_type = ?", string(entityType)).
		Where("source_change_type = ?", string(kind)).
		Where("is_active = ?", true).
		OrderBy("priority", "created_at", "id")

	rows, err := r.db.QueryContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query propagation rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*types.PropagationRule, 0)
	for rows.Next() {
		var (
			rule                       types.PropagationRule
			source, changeType, target string
			patterns                   []byte
		)
		err := rows.Scan(
			&rule.ID, &rule.ProjectID, &rule.Name, &source, &changeType,
			&target, &rule.TargetAction, &patterns, &rule.Priority,
			&rule.RequiresApproval, &rule.IsActive, &rule.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan propagation rule: %w", err)
		}
		rule.SourceEntityType = types.EntityType(source)
		rule.SourceChangeType = types.ChangeKind(changeType)
		rule.TargetEntityType = types.EntityType(target)
		rule.CreatedAt = rule.CreatedAt.UTC()
		if err := decodeJSON(patterns, &rule.FieldPatterns); err != nil {
			return nil, err
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}
