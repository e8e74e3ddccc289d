package types

// Well-known roles
const (
	RoleAdmin          = "ADMIN"
	RoleQualityManager = "QUALITY_MANAGER"
)

// User represents a person who can approve, decide or bypass
type User struct {
	ID         string `json:"id" yaml:"id" validate:"required"`
	Name       string `json:"name" yaml:"name"`
	Email      string `json:"email,omitempty" yaml:"email" validate:"omitempty,email"`
	Role       string `json:"role" yaml:"role" validate:"required"`
	Department string `json:"department,omitempty" yaml:"department"`
	IsActive   bool   `json:"is_active" yaml:"is_active"`
}

// HasRole checks if the user's role is in roles
func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
