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

// userRepository represents user repository implementation
type userRepository struct {
	db     database.Interface
	logger *zap.Logger
}

// NewUserRepository creates new user repository
func NewUserRepository(db database.Interface, logger *zap.Logger) UserRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns user by ID
func (r *userRepository) Get(ctx context.Context, id string) (*types.User, error) {
	query := r.db.Rebind(`SELECT id, name, email, role, department, is_active FROM users WHERE id = ?`)

	var u types.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &u.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// ListActiveByRoles returns active users holding any of roles
func (r *userRepository) ListActiveByRoles(ctx context.Context, roles []string) ([]*types.User, error) {
	if len(roles) == 0 {
		return []*types.User{}, nil
	}

	qb := database.NewQueryBuilder(r.db.Driver()).
		Select("id", "name", "email", "role", "department", "is_active").
		From("users").
		Where("is_active = ?", true).
		WhereIn("role", stringArgs(roles)...).
		OrderBy("id")

	rows, err := r.db.QueryContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*types.User, 0)
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &u.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// Upsert saves or updates a user
func (r *userRepository) Upsert(ctx context.Context, u *types.User) error {
	query := `INSERT INTO users (id, name, email, role, department, is_active)
		VALUES (?, ?, ?, ?, ?, ?) `

	switch r.db.Driver() {
	case database.DialectMySQL:
		query += `ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			email = VALUES(email),
			role = VALUES(role),
			department = VALUES(department),
			is_active = VALUES(is_active)`
	default:
		// sqlite and postgres share the ON CONFLICT form
		query += `ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			department = excluded.department,
			is_active = excluded.is_active`
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		u.ID, u.Name, u.Email, u.Role, u.Department, u.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}
