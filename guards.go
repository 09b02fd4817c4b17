package fitauth

import (
	"strings"
)

// Guard is one link of the authorization chain. Guards only ever narrow:
// they run against an already-authenticated identity, so their failures are
// forbidden (403), never unauthorized (401).
type Guard func(user *AuthUser) error

// RequireActive rechecks the activation flag. The pipeline already enforced
// it, but the identity may have been served from cache; the recheck bounds
// the staleness window at zero for guarded handlers holding a fresh
// projection.
func RequireActive() Guard {
	return func(user *AuthUser) error {
		if user == nil || !user.IsActive {
			return ErrUnauthorized
		}
		return nil
	}
}

// RequireRole demands an exact match on the role slug.
func RequireRole(slug string) Guard {
	active := RequireActive()
	return func(user *AuthUser) error {
		if err := active(user); err != nil {
			return err
		}
		if user.RoleSlug != slug {
			return ForbiddenError("access restricted to role " + slug)
		}
		return nil
	}
}

// RequireSuperuser demands the superuser flag.
func RequireSuperuser() Guard {
	active := RequireActive()
	return func(user *AuthUser) error {
		if err := active(user); err != nil {
			return err
		}
		if !user.IsSuperuser {
			return ForbiddenError("superuser privileges required")
		}
		return nil
	}
}

// RequireTrainer is the role gate for trainer-only endpoints.
func RequireTrainer() Guard {
	return RequireRole(TrainerRoleSlug)
}

// CheckCriticalActionAllowed enforces the business invariant layered on top
// of the generic chain: destructive or privilege-mutating operations may
// never target the caller's own account or the designated system
// administrator account.
func CheckCriticalActionAllowed(caller *AuthUser, target *User, systemAdminEmail string) error {
	if systemAdminEmail != "" && strings.EqualFold(target.Email, systemAdminEmail) {
		return ForbiddenError("cannot modify the primary system administrator account").
			WithTextCode(TextCodeProtectedAccount)
	}
	if caller != nil && caller.ID == target.ID {
		return ForbiddenError("cannot perform a destructive action on your own account").
			WithTextCode(TextCodeProtectedAccount)
	}
	return nil
}
