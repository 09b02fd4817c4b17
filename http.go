package fitauth

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// localsUserKey is where guard middleware stores the authenticated identity
// for handlers.
const localsUserKey = "fitauth:user"

// RequireAuth authenticates the request from the access-token cookie, runs
// the given guards in order, and stores the identity in the request locals.
func RequireAuth(auther *Auther, guards ...Guard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(AccessTokenCookie)
		if raw == "" {
			return ErrUnableToFindSession
		}

		user, err := auther.AuthenticateAccess(c.UserContext(), raw)
		if err != nil {
			return err
		}

		for _, guard := range guards {
			if err := guard(user); err != nil {
				return err
			}
		}

		c.Locals(localsUserKey, user)
		return c.Next()
	}
}

// RequireRefresh authenticates the request from the refresh-token cookie.
// The stored identity carries the consumed token's jti for rotation.
func RequireRefresh(auther *Auther) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(RefreshTokenCookie)
		if raw == "" {
			return ErrUnableToFindSession
		}

		user, err := auther.AuthenticateRefresh(c.UserContext(), raw)
		if err != nil {
			return err
		}

		c.Locals(localsUserKey, user)
		return c.Next()
	}
}

// AuthUserFromCtx returns the identity a guard middleware stored for this
// request.
func AuthUserFromCtx(c *fiber.Ctx) (*AuthUser, error) {
	user, ok := c.Locals(localsUserKey).(*AuthUser)
	if !ok || user == nil {
		return nil, ErrUnableToFindSession
	}
	return user, nil
}

// setTokenCookies delivers a freshly issued pair. The access cookie is lax
// so first-party navigation keeps working; the refresh cookie is strict
// because it must never leave first-party context.
func setTokenCookies(c *fiber.Ctx, pair *TokenPair, cfg Config) {
	c.Cookie(&fiber.Cookie{
		Name:     AccessTokenCookie,
		Value:    pair.Access,
		Path:     "/",
		MaxAge:   int(cfg.AccessTokenTTL.Seconds()),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     RefreshTokenCookie,
		Value:    pair.Refresh,
		Path:     "/",
		MaxAge:   int(cfg.RefreshTokenTTL.Seconds()),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// clearTokenCookies expires both auth cookies.
func clearTokenCookies(c *fiber.Ctx, cfg Config) {
	expired := time.Now().Add(-time.Hour)
	c.Cookie(&fiber.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  expired,
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Cookie(&fiber.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  expired,
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ErrorHandler maps rich errors onto HTTP responses. Every CategoryAuth
// failure collapses into the same generic 401 body regardless of which
// pipeline step rejected the request; the distinguishing reason is logged,
// never sent.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}

		var richErr *errors.Error
		if !errors.As(err, &richErr) {
			logger.Error("unhandled error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "An unexpected server error occurred",
			})
		}

		status := statusForError(richErr)

		if richErr.Category == errors.CategoryAuth {
			logger.Info("authentication rejected: %s path=%s", richErr.TextCode, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": UnauthorizedMessage,
				"code":  TextCodeUnauthorized,
			})
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed: %s category=%s path=%s", richErr.Message, richErr.Category, c.Path())
			return c.Status(status).JSON(fiber.Map{
				"error": "An unexpected server error occurred",
			})
		}

		return c.Status(status).JSON(fiber.Map{
			"error": richErr.Message,
			"code":  richErr.TextCode,
		})
	}
}

func statusForError(richErr *errors.Error) int {
	if richErr.Code > 0 {
		return richErr.Code
	}
	switch richErr.Category {
	case errors.CategoryAuth:
		return fiber.StatusUnauthorized
	case errors.CategoryAuthz:
		return fiber.StatusForbidden
	case errors.CategoryConflict:
		return fiber.StatusConflict
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryValidation, errors.CategoryBadInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
