package fitauth

import (
	"crypto/ed25519"
	"encoding/base64"
	"time"

	"github.com/goliatone/go-errors"
)

// Cookie names are fixed; the kind of token a request presents is determined
// by which cookie carried it, never by a claim inside the token.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// Role slugs recognized by the authorization chain.
const (
	DefaultRoleSlug   = "application-access"
	SuperuserRoleSlug = "superuser"
	TrainerRoleSlug   = "fitness-trainer"
)

const (
	defaultAccessTokenTTL  = 30 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultAuthCacheTTL    = 30 * time.Minute
)

// Config holds the explicit configuration injected into each component at
// construction time. There is no global settings object.
type Config struct {
	// SigningKey is the process-wide Ed25519 key, loaded once at startup.
	SigningKey ed25519.PrivateKey
	Issuer     string
	Audience   []string

	// AccessTokenTTL and RefreshTokenTTL are independent; deployments keep
	// the refresh lifetime at least an order of magnitude above the access
	// lifetime, but nothing here enforces the ratio.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AuthCacheTTL bounds how long a cached identity projection may serve
	// requests without a store round trip.
	AuthCacheTTL time.Duration

	// CookieSecure is per-deployment: true behind TLS.
	CookieSecure bool

	// SystemAdminEmail designates the immutable system account that no
	// destructive or privilege-mutating operation may target.
	SystemAdminEmail string
}

// WithDefaults fills unset durations with the standard lifetimes.
func (c Config) WithDefaults() Config {
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = defaultAccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	if c.AuthCacheTTL == 0 {
		c.AuthCacheTTL = defaultAuthCacheTTL
	}
	return c
}

// Validate reports fatal configuration problems. Call it at startup; a
// process must never come up with a partial auth configuration.
func (c Config) Validate() error {
	if len(c.SigningKey) != ed25519.PrivateKeySize {
		return ErrSigningKeyConfig
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive", errors.CategoryValidation)
	}
	return nil
}

// LoadSigningKey decodes Ed25519 key material from its base64 form. It
// accepts either a 32-byte seed or a full 64-byte private key. Anything else
// is a startup failure, never a runtime one.
func LoadSigningKey(material string) (ed25519.PrivateKey, error) {
	if material == "" {
		return nil, ErrSigningKeyConfig
	}

	raw, err := base64.StdEncoding.DecodeString(material)
	if err != nil {
		return nil, errors.Wrap(err, ErrSigningKeyConfig.Category, ErrSigningKeyConfig.Message).
			WithTextCode(ErrSigningKeyConfig.TextCode)
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, ErrSigningKeyConfig
	}
}
