package fitauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTClaims is the claim set carried by both token kinds. Access tokens add
// the email extra claim; refresh tokens carry only the registered set.
type JWTClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Subject returns the sub claim, the identity id as a string.
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// SubjectUUID parses the sub claim into the identity id.
func (c *JWTClaims) SubjectUUID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// TokenID returns the jti claim, unique per issuance.
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time.
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time.
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// hasRequiredClaims reports whether the mandatory claims are present. A token
// missing any of them is malformed regardless of a valid signature.
func (c *JWTClaims) hasRequiredClaims() bool {
	return c.RegisteredClaims.Subject != "" &&
		c.RegisteredClaims.ID != "" &&
		c.RegisteredClaims.IssuedAt != nil &&
		c.RegisteredClaims.ExpiresAt != nil
}

// ensureTokenID populates the jti claim when absent.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
