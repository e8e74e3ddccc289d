package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qmsgov/internal/database"
	"qmsgov/internal/types"

	"go.uber.org/zap"
)

const changeEventColumns = `id, project_id, entity_type, entity_id, change_type,
	changed_fields, old_value, new_value, impact_level, affected_modules,
	propagation_required, approval_required, approval_status, propagation_status,
	propagation_errors, triggered_by, batch_id, created_at, completed_at`

// changeEventRepository represents change event repository implementation
type changeEventRepository struct {
	db     database.Interface
	logger *zap.Logger
}

// NewChangeEventRepository creates new change event repository
func NewChangeEventRepository(db database.Interface, logger *zap.Logger) ChangeEventRepository {
	return &changeEventRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a change event
func (r *changeEventRepository) Create(ctx context.Context, ev *types.ChangeEvent) error {
	changed, err := jsonColumn(nonNil(ev.ChangedFields))
	if err != nil {
		return err
	}
	modules, err := jsonColumn(nonNil(ev.AffectedModules))
	if err != nil {
		return err
	}
	oldValue, err := nullableJSON(ev.OldValue, ev.OldValue == nil)
	if err != nil {
		return err
	}
	newValue, err := nullableJSON(ev.NewValue, ev.NewValue == nil)
	if err != nil {
		return err
	}
	propErrs, err := nullableJSON(ev.PropagationErrors, len(ev.PropagationErrors) == 0)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`INSERT INTO change_events (` + changeEventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		ev.ID, ev.ProjectID, string(ev.EntityType), ev.EntityID, string(ev.ChangeType),
		changed, oldValue, newValue, string(ev.ImpactLevel), modules,
		ev.PropagationRequired, ev.ApprovalRequired, string(ev.ApprovalStatus), string(ev.PropagationStatus),
		propErrs, ev.TriggeredBy, ev.BatchID, ev.CreatedAt.UTC(), nullTime(ev.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save change event: %w", err)
	}
	return nil
}

// Get returns change event by ID
func (r *changeEventRepository) Get(ctx context.Context, id string) (*types.ChangeEvent, error) {
	query := r.db.Rebind(`SELECT ` + changeEventColumns + ` FROM change_events WHERE id = ?`)

	ev, err := scanChangeEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("change event", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query change event: %w", err)
	}
	return ev, nil
}

// UpdateApprovalStatus sets the approval status and completion time
func (r *changeEventRepository) UpdateApprovalStatus(ctx context.Context, id string, from []types.ChangeApprovalStatus, status types.ChangeApprovalStatus, completedAt *time.Time) error {
	qb := database.NewQueryBuilder(r.db.Driver())
	qb.Raw("UPDATE change_events SET approval_status = ?, completed_at = ?", string(status), nullTime(completedAt))
	qb.Where("id = ?", id)
	if len(from) > 0 {
		qb.WhereIn("approval_status", stringArgs(from)...)
	}

	result, err := r.db.ExecContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return fmt.Errorf("failed to update change event approval status: %w", err)
	}
	rows, err := checkAffected(result, "change event")
	if err != nil {
		return err
	}
	if rows == 0 {
		return r.missingOrMoved(ctx, id)
	}
	return nil
}

// UpdatePropagation records the propagation outcome
func (r *changeEventRepository) UpdatePropagation(ctx context.Context, id string, status types.PropagationStatus, errs []string) error {
	propErrs, err := nullableJSON(errs, len(errs) == 0)
	if err != nil {
		return err
	}

	query := r.db.Rebind("UPDATE change_events SET propagation_status = ?, propagation_errors = ? WHERE id = ?")
	result, err := r.db.ExecContext(ctx, query, string(status), propErrs, id)
	if err != nil {
		return fmt.Errorf("failed to update change event propagation: %w", err)
	}
	rows, err := checkAffected(result, "change event")
	if err != nil {
		return err
	}
	if rows == 0 {
		return r.missingOrMoved(ctx, id)
	}
	return nil
}

// List returns the project's change events, newest first
func (r *changeEventRepository) List(ctx context.Context, projectID string, filter types.ChangeEventFilter) ([]*types.ChangeEvent, error) {
	qb := database.NewQueryBuilder(r.db.Driver()).
		Select(changeEventColumns).
		From("change_events").
		Where("project_id = ?", projectID)

	if filter.EntityType != "" {
		qb.Where("entity_type = ?", string(filter.EntityType))
	}
	if filter.EntityID != "" {
		qb.Where("entity_id = ?", filter.EntityID)
	}
	if filter.ImpactLevel != "" {
		qb.Where("impact_level = ?", string(filter.ImpactLevel))
	}
	if filter.ApprovalStatus != "" {
		qb.Where("approval_status = ?", string(filter.ApprovalStatus))
	}
	if filter.BatchID != "" {
		qb.Where("batch_id = ?", filter.BatchID)
	}
	qb.OrderBy("created_at DESC", "id").Limit(filter.Limit).Offset(filter.Offset)

	rows, err := r.db.QueryContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query change events: %w", err)
	}
	defer rows.Close()

	events := make([]*types.ChangeEvent, 0)
	for rows.Next() {
		ev, err := scanChangeEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// missingOrMoved distinguishes a missing row from a failed condition
func (r *changeEventRepository) missingOrMoved(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("change event %s: %w", id, types.ErrInvalidTransition)
}

func scanChangeEvent(row rowScanner) (*types.ChangeEvent, error) {
	var (
		ev                                  types.ChangeEvent
		changed, oldValue, newValue         []byte
		modules, propErrs                   []byte
		entityType, changeType, impactLevel string
		approvalStatus, propagationStatus   string
		completedAt                         sql.NullTime
	)

	err := row.Scan(
		&ev.ID, &ev.ProjectID, &entityType, &ev.EntityID, &changeType,
		&changed, &oldValue, &newValue, &impactLevel, &modules,
		&ev.PropagationRequired, &ev.ApprovalRequired, &approvalStatus, &propagationStatus,
		&propErrs, &ev.TriggeredBy, &ev.BatchID, &ev.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.EntityType = types.EntityType(entityType)
	ev.ChangeType = types.ChangeKind(changeType)
	ev.ImpactLevel = types.ImpactLevel(impactLevel)
	ev.ApprovalStatus = types.ChangeApprovalStatus(approvalStatus)
	ev.PropagationStatus = types.PropagationStatus(propagationStatus)
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.CompletedAt = timePtr(completedAt)

	for _, col := range []struct {
		data []byte
		dst  any
	}{
		{changed, &ev.ChangedFields},
		{oldValue, &ev.OldValue},
		{newValue, &ev.NewValue},
		{modules, &ev.AffectedModules},
		{propErrs, &ev.PropagationErrors},
	} {
		if err := decodeJSON(col.data, col.dst); err != nil {
			return nil, err
		}
	}
	if ev.ChangedFields == nil {
		ev.ChangedFields = []string{}
	}
	if ev.AffectedModules == nil {
		ev.AffectedModules = []string{}
	}
	return &ev, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
