package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"qmsgov/internal/repository"
	"qmsgov/internal/types"
)

// Directory resolves recipient criteria to users
type Directory interface {
	Resolve(ctx context.Context, r Recipients) ([]*types.User, error)
}

// UserDirectory resolves recipients through the user repository
type UserDirectory struct {
	users repository.UserRepository
}

// NewUserDirectory creates new user directory
func NewUserDirectory(users repository.UserRepository) *UserDirectory {
	return &UserDirectory{users: users}
}

// Resolve returns the distinct active users selected by r, ordered by
// explicit ids first and role matches after
func (d *UserDirectory) Resolve(ctx context.Context, r Recipients) ([]*types.User, error) {
	seen := make(map[string]bool)
	out := make([]*types.User, 0)

	for _, id := range r.UserIDs {
		if id == "" || seen[id] {
			continue
		}
		u, err := d.users.Get(ctx, id)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user %s: %w", id, err)
		}
		if !u.IsActive {
			continue
		}
		seen[id] = true
		out = append(out, u)
	}

	if len(r.Roles) > 0 {
		users, err := d.users.ListActiveByRoles(ctx, r.Roles)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve roles: %w", err)
		}
		for _, u := range users {
			if seen[u.ID] {
				continue
			}
			if len(r.Departments) > 0 && !slices.Contains(r.Departments, u.Department) {
				continue
			}
			seen[u.ID] = true
			out = append(out, u)
		}
	}
	return out, nil
}
