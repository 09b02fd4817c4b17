package fitauth

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// authCacheKeyPrefix namespaces cached identity projections. The key is
// built from the subject id deliberately; it is never derived from call
// arguments.
const authCacheKeyPrefix = "user_auth:"

// IdentityCache memoizes the authenticated-identity lookup with a bounded
// TTL. A concurrent stampede for the same subject results at most in
// redundant loader invocations; the loader is idempotent, so no single-flight
// guarantee is needed.
type IdentityCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger Logger
}

// NewIdentityCache creates a cache with the configured bounded TTL.
func NewIdentityCache(client redis.UniversalClient, ttl time.Duration, logger Logger) *IdentityCache {
	if logger == nil {
		logger = defLogger{}
	}
	return &IdentityCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *IdentityCache) key(subject uuid.UUID) string {
	return authCacheKeyPrefix + subject.String()
}

// GetOrLoad returns the cached projection for the subject, or invokes the
// loader on a miss and stores its result. A cache read failure degrades to a
// loader call: it says nothing about token validity, so failing closed here
// would turn a cache outage into a full outage.
func (c *IdentityCache) GetOrLoad(ctx context.Context, subject uuid.UUID, loader func(context.Context) (*AuthUser, error)) (*AuthUser, error) {
	key := c.key(subject)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var user AuthUser
		if err := msgpack.Unmarshal(data, &user); err == nil {
			return &user, nil
		}
		// Corrupt entry: drop it and fall through to the loader.
		c.logger.Warn("identity cache entry corrupt, reloading", "subject", subject.String())
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Warn("identity cache read failed, falling back to store", "error", err)
	}

	user, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := msgpack.Marshal(user)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to encode identity projection")
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		// The identity is already resolved; a failed write only costs the
		// next request a store round trip.
		c.logger.Warn("identity cache write failed", "subject", subject.String(), "error", err)
	}

	return user, nil
}

// Invalidate removes the cached projection for the subject. It must run
// after every password, role, or profile mutation and after account
// deletion; a missed invalidation is a correctness bug, not a performance
// one.
func (c *IdentityCache) Invalidate(ctx context.Context, subject uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(subject)).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to invalidate identity cache")
	}
	return nil
}
