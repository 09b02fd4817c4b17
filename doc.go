// Package fitauth implements the authentication and session-lifecycle core
// for the fitness-tracking backend: signed access/refresh token pairs
// delivered as cookies, refresh-token revocation, and the layered
// authorization chain used by every protected endpoint.
//
// Token lifecycle:
//   - TokenService issues Ed25519-signed JWTs carrying sub, iat, exp, and a
//     fresh jti per issuance. Access tokens are stateless and simply expire;
//     refresh tokens are additionally revocable through the RevocationLedger.
//   - On refresh the consumed token's jti is blacklisted so a rotated refresh
//     token can never be replayed.
//
// Identity resolution:
//   - Auther runs the per-request pipeline (decode, blacklist check on the
//     refresh path, cache-first identity load, active check) and collapses
//     every rejection into a single unauthorized error so callers cannot
//     probe which step failed.
//   - IdentityCache memoizes the store lookup with a bounded TTL; any
//     password, role, or profile mutation must invalidate the entry.
//
// Authorization:
//   - Guards compose over the authenticated identity: active status, role
//     slug, superuser flag. Guard failures are forbidden (403), never
//     confused with authentication failures (401).
package fitauth
