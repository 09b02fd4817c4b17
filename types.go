package fitauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthUser is the ephemeral identity projection the auth core works with.
// It carries only what authentication and authorization need; the credential
// hash never leaves the user store.
type AuthUser struct {
	ID          uuid.UUID `json:"id" msgpack:"id"`
	Name        string    `json:"name,omitempty" msgpack:"name"`
	Email       string    `json:"email" msgpack:"email"`
	IsActive    bool      `json:"is_active" msgpack:"is_active"`
	IsSuperuser bool      `json:"is_superuser" msgpack:"is_superuser"`
	RoleSlug    string    `json:"role_slug" msgpack:"role_slug"`
	JoinedAt    time.Time `json:"joined_at" msgpack:"joined_at"`

	// refreshJTI is populated only on the refresh-token path; downstream
	// rotation needs it to blacklist the consumed token.
	refreshJTI string
}

// RefreshJTI returns the jti of the refresh token this identity was
// authenticated with, or "" on the access path.
func (u *AuthUser) RefreshJTI() string {
	return u.refreshJTI
}

// WithRefreshJTI returns a copy carrying the consumed refresh token's jti.
func (u AuthUser) WithRefreshJTI(jti string) *AuthUser {
	u.refreshJTI = jti
	return &u
}

// UserCredentials is the minimal projection used to verify a login or a
// password change. It is the only place the credential hash surfaces.
type UserCredentials struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
}

// UserStore is the narrow store contract the authentication pipeline
// depends on. The full repository (see Users) implements it.
type UserStore interface {
	// GetAuthUser loads the identity projection for the given subject.
	GetAuthUser(ctx context.Context, id uuid.UUID) (*AuthUser, error)
	// GetCredentialsByEmail loads the credential projection for login.
	GetCredentialsByEmail(ctx context.Context, email string) (*UserCredentials, error)
	// GetCredentialsByID loads the credential projection for password rotation.
	GetCredentialsByID(ctx context.Context, id uuid.UUID) (*UserCredentials, error)
}

// TokenKind distinguishes the two issued token lifetimes. The kind is a
// caller-side decision (which cookie carries the token), never a claim the
// codec trusts from the token itself.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenService issues and validates signed, time-bound tokens.
type TokenService interface {
	Issue(subject string, kind TokenKind, extra map[string]string) (string, error)
	Validate(tokenString string) (*JWTClaims, error)
}

// TokenPair is the result of a login or a refresh rotation.
type TokenPair struct {
	Access  string
	Refresh string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
