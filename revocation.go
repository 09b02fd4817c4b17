package fitauth

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goliatone/go-errors"
)

// revokedKeyPrefix namespaces ledger entries so they cannot collide with
// cached identity data sharing the same store.
const revokedKeyPrefix = "revoked:"

// RevocationLedger tracks revoked refresh-token identifiers. Entries expire
// with the refresh-token lifetime, which bounds ledger growth to at most one
// entry per revoked token per its remaining lifetime; the store's own expiry
// semantics are relied upon, not reimplemented.
type RevocationLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger Logger
}

// NewRevocationLedger creates a ledger whose entries live as long as a
// refresh token can.
func NewRevocationLedger(client redis.UniversalClient, refreshTTL time.Duration, logger Logger) *RevocationLedger {
	if logger == nil {
		logger = defLogger{}
	}
	return &RevocationLedger{
		client: client,
		ttl:    refreshTTL,
		logger: logger,
	}
}

// Revoke records the jti as revoked for the refresh-token lifetime.
func (l *RevocationLedger) Revoke(ctx context.Context, jti string) error {
	if jti == "" {
		return errors.New("jti must not be empty", errors.CategoryBadInput)
	}

	if err := l.client.Set(ctx, revokedKeyPrefix+jti, "1", l.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to record token revocation")
	}
	return nil
}

// IsRevoked answers the membership query. Absence means "not revoked", not
// "never issued": revocation is opt-in per logout or rotation event, not a
// default-deny allowlist.
func (l *RevocationLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to query revocation ledger")
	}
	return n > 0, nil
}
