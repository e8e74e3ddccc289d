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

const approvalColumns = `id, change_event_id, workflow_id, step_number, step_name,
	approver_role, approver_id, status, due_date, escalated_at,
	decided_by, decided_at, comments, created_at`

// approvalRepository represents approval repository implementation
type approvalRepository struct {
	db     database.Interface
	logger *zap.Logger
}

// NewApprovalRepository creates new approval repository
func NewApprovalRepository(db database.Interface, logger *zap.Logger) ApprovalRepository {
	return &approvalRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts the approvals of one workflow execution in a transaction
func (r *approvalRepository) CreateBatch(ctx context.Context, approvals []*types.Approval) error {
	if len(approvals) == 0 {
		return nil
	}

	query := r.db.Rebind(`INSERT INTO approvals (` + approvalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, a := range approvals {
			_, err := stmt.ExecContext(ctx,
				a.ID, a.ChangeEventID, a.WorkflowID, a.StepNumber, a.StepName,
				a.ApproverRole, a.ApproverID, string(a.Status), a.DueDate.UTC(), nullTime(a.EscalatedAt),
				a.DecidedBy, nullTime(a.DecidedAt), a.Comments, a.CreatedAt.UTC())
			if err != nil {
				return fmt.Errorf("failed to save approval for step %d: %w", a.StepNumber, err)
			}
		}
		return nil
	})
}

// Get returns approval by ID
func (r *approvalRepository) Get(ctx context.Context, id string) (*types.Approval, error) {
	query := r.db.Rebind(`SELECT ` + approvalColumns + ` FROM approvals WHERE id = ?`)

	a, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("approval", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query approval: %w", err)
	}
	return a, nil
}

// ListByChangeEvent returns the approvals of a change event ordered by step
func (r *approvalRepository) ListByChangeEvent(ctx context.Context, changeEventID string) ([]*types.Approval, error) {
	qb := database.NewQueryBuilder(r.db.Driver()).
		Select(approvalColumns).
		From("approvals").
		Where("change_event_id = ?", changeEventID).
		OrderBy("step_number")
	return r.query(ctx, qb)
}

// ListOverdue returns pending approvals due before now
func (r *approvalRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*types.Approval, error) {
	qb := database.NewQueryBuilder(r.db.Driver()).
		Select(approvalColumns).
		From("approvals").
		Where("status = ?", string(types.ApprovalPending)).
		Where("due_date < ?", now.UTC()).
		OrderBy("due_date", "id").
		Limit(limit)
	return r.query(ctx, qb)
}

// ListPendingFor returns pending approvals assigned to the user or the role
func (r *approvalRepository) ListPendingFor(ctx context.Context, userID, role string) ([]*types.Approval, error) {
	qb := database.NewQueryBuilder(r.db.Driver()).
		Select(approvalColumns).
		From("approvals").
		Where("status = ?", string(types.ApprovalPending)).
		Where("(approver_id = ? OR (approver_id = '' AND approver_role = ?))", userID, role).
		OrderBy("due_date", "id")
	return r.query(ctx, qb)
}

// Transition updates the approval only while its status is one of from
func (r *approvalRepository) Transition(ctx context.Context, id string, from []types.ApprovalStatus, update types.ApprovalUpdate) (*types.Approval, error) {
	qb := database.NewQueryBuilder(r.db.Driver())
	qb.Raw("UPDATE approvals SET status = ?", string(update.Status))
	if update.DecidedBy != "" {
		qb.Raw(", decided_by = ?", update.DecidedBy)
	}
	if update.DecidedAt != nil {
		qb.Raw(", decided_at = ?", nullTime(update.DecidedAt))
	}
	if update.Comments != "" {
		qb.Raw(", comments = ?", update.Comments)
	}
	if update.EscalatedAt != nil {
		qb.Raw(", escalated_at = ?", nullTime(update.EscalatedAt))
	}
	qb.Where("id = ?", id)
	qb.WhereIn("status", stringArgs(from)...)

	result, err := r.db.ExecContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to update approval: %w", err)
	}
	rows, err := checkAffected(result, "approval")
	if err != nil {
		return nil, err
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return current, fmt.Errorf("approval %s is %s: %w", id, current.Status, types.ErrInvalidTransition)
	}
	return current, nil
}

func (r *approvalRepository) query(ctx context.Context, qb *database.QueryBuilder) ([]*types.Approval, error) {
	rows, err := r.db.QueryContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	approvals := make([]*types.Approval, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

func scanApproval(row rowScanner) (*types.Approval, error) {
	var (
		a                      types.Approval
		status                 string
		escalatedAt, decidedAt sql.NullTime
	)

	err := row.Scan(
		&a.ID, &a.ChangeEventID, &a.WorkflowID, &a.StepNumber, &a.StepName,
		&a.ApproverRole, &a.ApproverID, &status, &a.DueDate, &escalatedAt,
		&a.DecidedBy, &decidedAt, &a.Comments, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = types.ApprovalStatus(status)
	a.DueDate = a.DueDate.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.EscalatedAt = timePtr(escalatedAt)
	a.DecidedAt = timePtr(decidedAt)
	return &a, nil
}
