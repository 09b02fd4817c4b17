package fitauth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is a coarse-grained authorization tier. Every user holds exactly one
// role at any time; reassignment is a single atomic update of the user row.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Slug      string     `bun:"slug,notnull,unique" json:"slug,omitempty"`
	Name      string     `bun:"name,notnull" json:"name,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// User is the account model owned by the user store. The auth core never
// hands the password hash to anything but the credential verifier.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name         string     `bun:"name" json:"name,omitempty"`
	Email        string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash string     `bun:"password_hash,notnull" json:"-"`
	IsActive     bool       `bun:"is_active,notnull" json:"is_active"`
	IsSuperuser  bool       `bun:"is_superuser,notnull" json:"is_superuser"`
	RoleID       uuid.UUID  `bun:"role_id,nullzero,type:uuid" json:"role_id,omitempty"`
	Role         *Role      `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	CreatedAt    *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RoleSlug returns the slug of the loaded role relation, or "" when the
// relation was not selected.
func (u *User) RoleSlug() string {
	if u.Role == nil {
		return ""
	}
	return u.Role.Slug
}

// AuthProjection maps the stored account onto the ephemeral identity
// projection the pipeline and guards consume. The credential hash is
// deliberately absent.
func (u *User) AuthProjection() *AuthUser {
	joined := time.Time{}
	if u.CreatedAt != nil {
		joined = *u.CreatedAt
	}
	return &AuthUser{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		RoleSlug:    u.RoleSlug(),
		JoinedAt:    joined,
	}
}

// Credentials maps the stored account onto the login projection.
func (u *User) Credentials() *UserCredentials {
	return &UserCredentials{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
	}
}
