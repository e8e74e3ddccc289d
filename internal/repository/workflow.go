package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qmsgov/internal/database"
	"qmsgov/internal/types"

	"go.uber.org/zap"
)

const workflowColumns = `id, project_id, name, description, trigger_conditions, steps,
	is_parallel, auto_approve_conditions, default_timeout_hours, escalation_roles,
	emergency_bypass_roles, is_active, created_by, created_at`

// workflowRepository represents workflow definition repository implementation
type workflowRepository struct {
	db     database.Interface
	logger *zap.Logger
}

// NewWorkflowRepository creates new workflow definition repository
func NewWorkflowRepository(db database.Interface, logger *zap.Logger) WorkflowRepository {
	return &workflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a workflow definition
func (r *workflowRepository) Create(ctx context.Context, def *types.WorkflowDefinition) error {
	trigger := def.TriggerConditions
	if trigger == nil {
		trigger = types.Conditions{}
	}
	triggerJSON, err := jsonColumn(trigger)
	if err != nil {
		return err
	}
	steps, err := jsonColumn(def.Steps)
	if err != nil {
		return err
	}
	autoApprove, err := nullableJSON(def.AutoApproveConditions, len(def.AutoApproveConditions) == 0)
	if err != nil {
		return err
	}
	escalation, err := nullableJSON(def.EscalationRoles, len(def.EscalationRoles) == 0)
	if err != nil {
		return err
	}
	bypass, err := nullableJSON(def.EmergencyBypassRoles, len(def.EmergencyBypassRoles) == 0)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`INSERT INTO workflow_definitions (` + workflowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		def.ID, def.ProjectID, def.Name, def.Description, triggerJSON, steps,
		def.IsParallel, autoApprove, def.DefaultTimeoutHours, escalation,
		bypass, def.IsActive, def.CreatedBy, def.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}
	return nil
}

// Get returns workflow definition by ID
func (r *workflowRepository) Get(ctx context.Context, id string) (*types.WorkflowDefinition, error) {
	query := r.db.Rebind(`SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE id = ?`)

	def, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("workflow", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definition: %w", err)
	}
	return def, nil
}

// ListActive returns the project's active workflow definitions, newest first
func (r *workflowRepository) ListActive(ctx context.Context, projectID string) ([]*types.WorkflowDefinition, error) {
	qb := database.NewQueryBuilder(r.db.Driver()).
		Select(workflowColumns).
		From("workflow_definitions").
		Where("project_id = ?", projectID).
		Where("is_active = ?", true).
		OrderBy("created_at DESC", "id DESC")

	rows, err := r.db.QueryContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]*types.WorkflowDefinition, 0)
	for rows.Next() {
		def, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func scanWorkflow(row rowScanner) (*types.WorkflowDefinition, error) {
	var (
		def                         types.WorkflowDefinition
		trigger, steps, autoApprove []byte
		escalation, bypass          []byte
	)

	err := row.Scan(
		&def.ID, &def.ProjectID, &def.Name, &def.Description, &trigger, &steps,
		&def.IsParallel, &autoApprove, &def.DefaultTimeoutHours, &escalation,
		&bypass, &def.IsActive, &def.CreatedBy, &def.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	def.CreatedAt = def.CreatedAt.UTC()

	for _, col := range []struct {
		data []byte
		dst  any
	}{
		{trigger, &def.TriggerConditions},
		{steps, &def.Steps},
		{autoApprove, &def.AutoApproveConditions},
		{escalation, &def.EscalationRoles},
		{bypass, &def.EmergencyBypassRoles},
	} {
		if err := decodeJSON(col.data, col.dst); err != nil {
			return nil, err
		}
	}
	if def.TriggerConditions == nil {
		def.TriggerConditions = types.Conditions{}
	}
	return &def, nil
}
