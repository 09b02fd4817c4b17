package fitauth

import (
	"context"

	"github.com/google/uuid"
)

// dummyHash keeps the not-found path on the same code path and cost as a
// wrong password, so the two outcomes cannot be told apart from outside.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$" +
	"c29tZXNhbHRzb21lc2FsdA$Yk1Ls+T1CrXkXCiFvucHAf2UCLJwGUtSqmGRyFJMx1g"

// Auther composes the token codec, revocation ledger, identity cache, and
// user store into the per-request authentication pipeline. It is stateless
// per call; every shared resource it holds is safe for concurrent use.
type Auther struct {
	store  UserStore
	tokens TokenService
	hasher *PasswordHasher
	ledger *RevocationLedger
	cache  *IdentityCache
	logger Logger
}

// NewAuther returns a new authenticator over the given collaborators.
func NewAuther(store UserStore, tokens TokenService, hasher *PasswordHasher, ledger *RevocationLedger, cache *IdentityCache) *Auther {
	return &Auther{
		store:  store,
		tokens: tokens,
		hasher: hasher,
		ledger: ledger,
		cache:  cache,
		logger: defLogger{},
	}
}

func (a *Auther) WithLogger(logger Logger) *Auther {
	a.logger = logger
	return a
}

// Login verifies the credentials and issues a fresh access/refresh pair.
// Unknown account, wrong password, and inactive account all produce the same
// unauthorized outcome; the distinction exists only in the logs.
func (a *Auther) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	creds, err := a.store.GetCredentialsByEmail(ctx, email)
	if err != nil {
		// Burn a verification anyway so an unknown email costs the same
		// as a wrong password.
		_, _ = a.hasher.Verify(ctx, password, dummyHash)
		a.logger.Info("login rejected", "reason", "unknown account", "error", err)
		return nil, ErrUnauthorized
	}

	ok, err := a.hasher.Verify(ctx, password, creds.PasswordHash)
	if err != nil {
		a.logger.Error("login credential verification failed", "error", err)
		return nil, ErrUnauthorized
	}
	if !ok || !creds.IsActive {
		a.logger.Info("login rejected", "subject", creds.ID.String(), "active", creds.IsActive)
		return nil, ErrUnauthorized
	}

	return a.IssuePair(creds.ID, creds.Email)
}

// IssuePair mints a short-lived access token and a long-lived refresh token
// for the subject. Each call generates fresh token identifiers.
func (a *Auther) IssuePair(subject uuid.UUID, email string) (*TokenPair, error) {
	access, err := a.tokens.Issue(subject.String(), TokenKindAccess, map[string]string{"email": email})
	if err != nil {
		a.logger.Error("failed to issue access token", "error", err)
		return nil, ErrUnauthorized
	}

	refresh, err := a.tokens.Issue(subject.String(), TokenKindRefresh, nil)
	if err != nil {
		a.logger.Error("failed to issue refresh token", "error", err)
		return nil, ErrUnauthorized
	}

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// AuthenticateAccess runs the access-token pipeline: decode and verify,
// cache-first identity load, active check. Every rejection collapses into
// ErrUnauthorized.
func (a *Auther) AuthenticateAccess(ctx context.Context, raw string) (*AuthUser, error) {
	claims, err := a.verifyToken(raw)
	if err != nil {
		return nil, err
	}

	user, err := a.loadIdentity(ctx, claims)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		a.logger.Info("authentication rejected", "reason", "inactive account", "subject", user.ID.String())
		return nil, ErrUnauthorized
	}

	return user, nil
}

// AuthenticateRefresh runs the refresh-token pipeline, which additionally
// consults the revocation ledger before the identity load. On success the
// consumed token's jti is attached for downstream rotation.
func (a *Auther) AuthenticateRefresh(ctx context.Context, raw string) (*AuthUser, error) {
	claims, err := a.verifyToken(raw)
	if err != nil {
		return nil, err
	}

	revoked, err := a.ledger.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		// The ledger answer is ambiguous about token validity: fail closed.
		a.logger.Error("revocation ledger check failed", "error", err)
		return nil, ErrUnauthorized
	}
	if revoked {
		a.logger.Info("authentication rejected", "reason", "revoked refresh token", "jti", claims.TokenID())
		return nil, ErrUnauthorized
	}

	user, err := a.loadIdentity(ctx, claims)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		a.logger.Info("authentication rejected", "reason", "inactive account", "subject", user.ID.String())
		return nil, ErrUnauthorized
	}

	return user.WithRefreshJTI(claims.TokenID()), nil
}

// RefreshTokenID decodes a refresh token just far enough to recover its jti
// for blacklisting, without the full pipeline.
func (a *Auther) RefreshTokenID(raw string) (string, error) {
	claims, err := a.verifyToken(raw)
	if err != nil {
		return "", err
	}
	return claims.TokenID(), nil
}

// Invalidate drops the cached identity projection for the subject.
func (a *Auther) Invalidate(ctx context.Context, subject uuid.UUID) error {
	return a.cache.Invalidate(ctx, subject)
}

// Revoke records a refresh-token jti in the revocation ledger.
func (a *Auther) Revoke(ctx context.Context, jti string) error {
	return a.ledger.Revoke(ctx, jti)
}

func (a *Auther) verifyToken(raw string) (*JWTClaims, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}

	claims, err := a.tokens.Validate(raw)
	if err != nil {
		// The codec failure class is diagnostic only; it never reaches
		// the caller.
		a.logger.Info("token validation failed", "error", err)
		return nil, ErrUnauthorized
	}

	return claims, nil
}

// loadIdentity resolves the subject cache-first. The store lookup is the
// expensive step of the pipeline, so it is the one memoized.
func (a *Auther) loadIdentity(ctx context.Context, claims *JWTClaims) (*AuthUser, error) {
	subject, err := claims.SubjectUUID()
	if err != nil {
		a.logger.Info("token subject is not a valid identifier", "subject", claims.Subject())
		return nil, ErrUnauthorized
	}

	user, err := a.cache.GetOrLoad(ctx, subject, func(ctx context.Context) (*AuthUser, error) {
		return a.store.GetAuthUser(ctx, subject)
	})
	if err != nil {
		// Unknown subject is indistinguishable from any other rejection.
		a.logger.Info("identity load failed", "subject", subject.String(), "error", err)
		return nil, ErrUnauthorized
	}

	return user, nil
}
