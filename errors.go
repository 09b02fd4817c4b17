package fitauth

import (
	"github.com/goliatone/go-errors"
)

// Text codes surfaced in error payloads for client-side handling.
const (
	TextCodeUnauthorized     = "UNAUTHORIZED"
	TextCodeForbidden        = "FORBIDDEN"
	TextCodeInvalidCreds     = "INVALID_CREDENTIALS"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenMalformed   = "TOKEN_MALFORMED"
	TextCodeTokenInvalid     = "TOKEN_INVALID"
	TextCodeTokenRevoked     = "TOKEN_REVOKED"
	TextCodeSessionNotFound  = "SESSION_NOT_FOUND"
	TextCodeEmptyPassword    = "EMPTY_PASSWORD"
	TextCodeRoleConflict     = "ROLE_CONFLICT"
	TextCodeDuplicateEmail   = "DUPLICATE_EMAIL"
	TextCodeProtectedAccount = "PROTECTED_ACCOUNT"
	TextCodeSigningKeyConfig = "SIGNING_KEY_CONFIG"
)

// UnauthorizedMessage is the one generic message every rejected
// authentication attempt returns, regardless of cause.
const UnauthorizedMessage = "Invalid credentials or account is unavailable"

// ErrUnauthorized is the single outward signal for every authentication
// failure: missing, invalid, expired, or blacklisted token, unknown subject,
// wrong password, inactive account. The sub-condition is logged, never
// surfaced, so clients cannot enumerate accounts or probe token state.
var ErrUnauthorized = errors.New(UnauthorizedMessage, errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned when the caller is authenticated but lacks the
// required role or privilege. Unlike ErrUnauthorized its message may be
// specific since it cannot aid credential enumeration.
var ErrForbidden = errors.New("insufficient privileges", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrIdentityNotFound is the error we return for non found identities.
// It must never cross the authentication boundary; the pipeline collapses
// it into ErrUnauthorized.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrMismatchedHashAndPassword means the cleartext does not verify against
// the stored hash. Internal only; indistinguishable from an unknown account
// in caller-visible behavior.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired means the exp claim is in the past.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed means required claims are absent or structurally wrong.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalid means the signature did not verify.
var ErrTokenInvalid = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToFindSession is the error when the request carries no token cookie.
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before they reach the hasher.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrSigningKeyConfig is a fatal startup failure: the process must not come
// up without valid signing key material. Never recovered at runtime.
var ErrSigningKeyConfig = errors.New("jwt signing key is missing or malformed", errors.CategoryInternal).
	WithTextCode(TextCodeSigningKeyConfig).
	WithCode(errors.CodeInternal)

// ErrProtectedAccount guards the designated system administrator account and
// the caller's own account against destructive or privilege-mutating actions.
var ErrProtectedAccount = errors.New("destructive action on this account is forbidden", errors.CategoryAuthz).
	WithTextCode(TextCodeProtectedAccount).
	WithCode(errors.CodeForbidden)

// ConflictError builds a descriptive conflict (duplicate email, role already
// held). Not a security-sensitive category, so the message stays specific.
func ConflictError(msg, textCode string) *errors.Error {
	return errors.New(msg, errors.CategoryConflict).
		WithTextCode(textCode).
		WithCode(errors.CodeConflict)
}

// ValidationError wraps a payload validation failure so the handler chain
// renders it as a 400 with the rule messages intact.
func ValidationError(err error) *errors.Error {
	return errors.New(err.Error(), errors.CategoryValidation).
		WithTextCode("VALIDATION_ERROR").
		WithCode(errors.CodeBadRequest)
}

// BadRequestError is for payloads that cannot even be parsed.
func BadRequestError(msg string) *errors.Error {
	return errors.New(msg, errors.CategoryBadInput).
		WithCode(errors.CodeBadRequest)
}

// ForbiddenError builds a forbidden error with a caller-facing reason.
func ForbiddenError(msg string) *errors.Error {
	return errors.New(msg, errors.CategoryAuthz).
		WithTextCode(TextCodeForbidden).
		WithCode(errors.CodeForbidden)
}

// IsUnauthorized reports whether err maps to the 401 class.
func IsUnauthorized(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.Category == errors.CategoryAuth
	}
	return false
}

// IsForbidden reports whether err maps to the 403 class.
func IsForbidden(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.Category == errors.CategoryAuthz
	}
	return false
}
