package model

import (
	"strings"
	"time"
)

// Role names a permission level. Roles form a strict hierarchy:
// user < readonly-admin < admin.
type Role string

const (
	RoleUser          Role = "user"
	RoleReadonlyAdmin Role = "readonly-admin"
	RoleAdmin         Role = "admin"
)

// rank orders roles in the hierarchy; unknown roles rank below everything.
func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleReadonlyAdmin:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.rank() > 0 }

// Dominates reports whether holding r satisfies a check for required.
func (r Role) Dominates(required Role) bool {
	return r.Valid() && required.Valid() && r.rank() >= required.rank()
}

// ParseRoles validates and de-duplicates a role list, keeping input order.
func ParseRoles(names []string) ([]Role, bool) {
	if len(names) == 0 {
		return nil, false
	}
	seen := make(map[Role]bool, len(names))
	out := make([]Role, 0, len(names))
	for _, n := range names {
		r := Role(strings.ToLower(strings.TrimSpace(n)))
		if !r.Valid() {
			return nil, false
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out, true
}

// User mirrors an element of the `users` array in the data file.
//
// Email is stored lower-cased and never changes after creation.
// PasswordHash is the bcrypt hash and must never leave the service layer;
// handlers render PublicUser instead.
type User struct {
	ID           uint64    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicUser is the outward view of a User.
type PublicUser struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []Role    `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public strips the password hash.
func (u User) Public() PublicUser {
	roles := make([]Role, len(u.Roles))
	copy(roles, u.Roles)
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// NormalizeEmail lower-cases and trims an address so comparisons are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
