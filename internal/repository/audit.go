package repository

import (
	"context"
	"fmt"

	"qmsgov/internal/database"
	"qmsgov/internal/types"

	"go.uber.org/zap"
)

// auditRepository stores audit entries in the audit_logs table
type auditRepository struct {
	db     database.Interface
	logger *zap.Logger
}

// NewAuditRepository creates new SQL audit repository
func NewAuditRepository(db database.Interface, logger *zap.Logger) AuditRepository {
	return &auditRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts an audit entry
func (r *auditRepository) Append(ctx context.Context, e *types.AuditEntry) error {
	details, err := nullableJSON(e.Details, len(e.Details) == 0)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`INSERT INTO audit_logs (
			id, action, entity_type, entity_id, actor_id, reason, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.Action, e.EntityType, e.EntityID, e.ActorID, e.Reason, details, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the entity's audit trail, oldest first
func (r *auditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*types.AuditEntry, error) {
	qb := database.NewQueryBuilder(r.db.Driver()).
		Select("id", "action", "entity_type", "entity_id", "actor_id", "reason", "details", "created_at").
		From("audit_logs").
		Where("entity_type = ?", entityType).
		Where("entity_id = ?", entityID).
		OrderBy("created_at", "id")

	rows, err := r.db.QueryContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]*types.AuditEntry, 0)
	for rows.Next() {
		var (
			e       types.AuditEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.ActorID, &e.Reason, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		if err := decodeJSON(details, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
