package fitauth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AccessController owns the HTTP surface of the auth subsystem: account
// signup, the session lifecycle, and the superuser management endpoints.
type AccessController struct {
	Logger Logger
	Repo   Users
	Auther *Auther
	Hasher *PasswordHasher
	Tasks  *TaskRunner
	Config Config
}

type AccessControllerOption func(*AccessController) *AccessController

func WithControllerLogger(logger Logger) AccessControllerOption {
	return func(c *AccessController) *AccessController {
		c.Logger = logger
		return c
	}
}

func WithTaskRunner(tasks *TaskRunner) AccessControllerOption {
	return func(c *AccessController) *AccessController {
		c.Tasks = tasks
		return c
	}
}

func NewAccessController(repo Users, auther *Auther, hasher *PasswordHasher, cfg Config, opts ...AccessControllerOption) *AccessController {
	c := &AccessController{
		Logger: defLogger{},
		Repo:   repo,
		Auther: auther,
		Hasher: hasher,
		Config: cfg,
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Tasks == nil {
		c.Tasks = NewTaskRunner(c.Logger)
	}

	return c
}

// RegisterAuthRoutes mounts the subsystem onto the app. Session endpoints
// live under /auth, account management under /users behind the superuser
// guard.
func RegisterAuthRoutes(app fiber.Router, ctrl *AccessController) {
	auth := app.Group("/auth")
	auth.Post("/signup", ctrl.SignUp)
	auth.Post("/login", ctrl.Login)
	auth.Post("/refresh", RequireRefresh(ctrl.Auther), ctrl.Refresh)
	auth.Post("/logout", RequireAuth(ctrl.Auther), ctrl.Logout)
	auth.Get("/me", RequireAuth(ctrl.Auther), ctrl.Me)
	auth.Patch("/password", RequireAuth(ctrl.Auther), ctrl.ChangePassword)

	admin := app.Group("/users", RequireAuth(ctrl.Auther, RequireSuperuser()))
	admin.Post("/:id/roles/:slug", ctrl.AssignRole)
	admin.Delete("/:id/roles/:slug", ctrl.RevokeRole)
	admin.Patch("/:id", ctrl.UpdateUser)
	admin.Post("/:id/deactivate", ctrl.DeactivateUser)
	admin.Delete("/:id", ctrl.DeleteUser)
}

type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

// SignUp registers a new account with the default role. The credential hash
// never appears in the response.
func (a *AccessController) SignUp(c *fiber.Ctx) error {
	payload := SignUpRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return BadRequestError("could not parse signup payload")
	}
	if err := payload.Validate(); err != nil {
		return ValidationError(err)
	}

	hash, err := a.Hasher.Hash(c.UserContext(), payload.Password)
	if err != nil {
		return err
	}

	role, err := a.Repo.GetRoleBySlug(c.UserContext(), DefaultRoleSlug)
	if err != nil {
		return err
	}

	user, err := a.Repo.Create(c.UserContext(), &User{
		Name:         payload.Name,
		Email:        payload.Email,
		PasswordHash: hash,
		IsActive:     true,
		RoleID:       role.ID,
		Role:         role,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(user.AuthProjection())
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login verifies credentials and delivers the token pair as cookies. The
// body is empty; tokens never travel in a response payload.
func (a *AccessController) Login(c *fiber.Ctx) error {
	payload := LoginRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return BadRequestError("could not parse login payload")
	}
	if err := payload.Validate(); err != nil {
		return ValidationError(err)
	}

	pair, err := a.Auther.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	setTokenCookies(c, pair, a.Config)
	return c.SendStatus(fiber.StatusNoContent)
}

// Refresh rotates the pair: a new access and refresh token are issued and
// the consumed refresh token is revoked in the background. Response latency
// never waits on the ledger write.
func (a *AccessController) Refresh(c *fiber.Ctx) error {
	user, err := AuthUserFromCtx(c)
	if err != nil {
		return err
	}

	pair, err := a.Auther.IssuePair(user.ID, user.Email)
	if err != nil {
		return err
	}

	if jti := user.RefreshJTI(); jti != "" {
		a.Tasks.Go("revoke-rotated-refresh", func(ctx context.Context) error {
			return a.Auther.Revoke(ctx, jti)
		})
	}

	setTokenCookies(c, pair, a.Config)
	return c.SendStatus(fiber.StatusNoContent)
}

// Logout revokes the session's refresh token and drops the cached identity,
// both in the background, then expires the cookies. Always succeeds from
// the client's point of view.
func (a *AccessController) Logout(c *fiber.Ctx) error {
	user, err := AuthUserFromCtx(c)
	if err != nil {
		return err
	}

	if raw := c.Cookies(RefreshTokenCookie); raw != "" {
		if jti, err := a.Auther.RefreshTokenID(raw); err == nil && jti != "" {
			a.Tasks.Go("revoke-session-refresh", func(ctx context.Context) error {
				return a.Auther.Revoke(ctx, jti)
			})
		}
	}

	subject := user.ID
	a.Tasks.Go("invalidate-identity", func(ctx context.Context) error {
		return a.Auther.Invalidate(ctx, subject)
	})

	clearTokenCookies(c, a.Config)
	return c.SendStatus(fiber.StatusNoContent)
}

// Me returns the caller's identity projection.
func (a *AccessController) Me(c *fiber.Ctx) error {
	user, err := AuthUserFromCtx(c)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
	)
}

// ChangePassword re-verifies the current password, stores the new hash, and
// terminates the session: the refresh token is revoked, the cached identity
// dropped, and the cookies cleared so the client must log in again.
func (a *AccessController) ChangePassword(c *fiber.Ctx) error {
	user, err := AuthUserFromCtx(c)
	if err != nil {
		return err
	}

	payload := ChangePasswordRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return BadRequestError("could not parse password payload")
	}
	if err := payload.Validate(); err != nil {
		return ValidationError(err)
	}

	creds, err := a.Repo.GetCredentialsByID(c.UserContext(), user.ID)
	if err != nil {
		a.Logger.Error("password change could not load credentials", "error", err)
		return ErrUnauthorized
	}

	ok, err := a.Hasher.Verify(c.UserContext(), payload.CurrentPassword, creds.PasswordHash)
	if err != nil {
		a.Logger.Error("password change verification failed", "error", err)
		return ErrUnauthorized
	}
	if !ok {
		return ErrUnauthorized
	}

	hash, err := a.Hasher.Hash(c.UserContext(), payload.NewPassword)
	if err != nil {
		return err
	}

	if err := a.Repo.UpdatePasswordHash(c.UserContext(), user.ID, hash); err != nil {
		return err
	}

	if raw := c.Cookies(RefreshTokenCookie); raw != "" {
		if jti, err := a.Auther.RefreshTokenID(raw); err == nil && jti != "" {
			a.Tasks.Go("revoke-session-refresh", func(ctx context.Context) error {
				return a.Auther.Revoke(ctx, jti)
			})
		}
	}

	subject := user.ID
	a.Tasks.Go("invalidate-identity", func(ctx context.Context) error {
		return a.Auther.Invalidate(ctx, subject)
	})

	clearTokenCookies(c, a.Config)
	return c.SendStatus(fiber.StatusNoContent)
}

// AssignRole grants the target user the role named by the slug. Assigning a
// role the user already holds is a conflict, no silent no-op.
func (a *AccessController) AssignRole(c *fiber.Ctx) error {
	caller, target, err := a.resolveRoleChange(c)
	if err != nil {
		return err
	}

	if err := CheckCriticalActionAllowed(caller, target, a.Config.SystemAdminEmail); err != nil {
		return err
	}

	slug := c.Params("slug")
	if target.RoleSlug() == slug {
		return ConflictError("user already has this role", TextCodeRoleConflict)
	}

	role, err := a.Repo.GetRoleBySlug(c.UserContext(), slug)
	if err != nil {
		return err
	}

	if err := a.Repo.SetRole(c.UserContext(), target.ID, role.ID); err != nil {
		return err
	}

	a.invalidateLater(target.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

// RevokeRole removes the named role from the target, reverting them to the
// default role. Revoking a role the user does not hold is a conflict, as is
// revoking the default role itself.
func (a *AccessController) RevokeRole(c *fiber.Ctx) error {
	caller, target, err := a.resolveRoleChange(c)
	if err != nil {
		return err
	}

	if err := CheckCriticalActionAllowed(caller, target, a.Config.SystemAdminEmail); err != nil {
		return err
	}

	slug := c.Params("slug")
	if slug == DefaultRoleSlug {
		return ConflictError("the default role cannot be revoked", TextCodeRoleConflict)
	}
	if target.RoleSlug() != slug {
		return ConflictError("user does not have this role", TextCodeRoleConflict)
	}

	fallback, err := a.Repo.GetRoleBySlug(c.UserContext(), DefaultRoleSlug)
	if err != nil {
		return err
	}

	if err := a.Repo.SetRole(c.UserContext(), target.ID, fallback.ID); err != nil {
		return err
	}

	a.invalidateLater(target.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

type UpdateUserRequest struct {
	Name string `json:"name"`
}

func (r UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// UpdateUser edits the target's profile on their behalf.
func (a *AccessController) UpdateUser(c *fiber.Ctx) error {
	caller, target, err := a.resolveRoleChange(c)
	if err != nil {
		return err
	}

	if err := CheckCriticalActionAllowed(caller, target, a.Config.SystemAdminEmail); err != nil {
		return err
	}

	payload := UpdateUserRequest{}
	if err := c.BodyParser(&payload); err != nil {
		return BadRequestError("could not parse user payload")
	}
	if err := payload.Validate(); err != nil {
		return ValidationError(err)
	}

	updated, err := a.Repo.UpdateProfile(c.UserContext(), target.ID, payload.Name)
	if err != nil {
		return err
	}

	a.invalidateLater(target.ID)
	return c.JSON(updated.AuthProjection())
}

// DeactivateUser suspends the target account. Their cached identity is
// dropped so in-flight tokens stop authenticating on the next request.
func (a *AccessController) DeactivateUser(c *fiber.Ctx) error {
	caller, target, err := a.resolveRoleChange(c)
	if err != nil {
		return err
	}

	if err := CheckCriticalActionAllowed(caller, target, a.Config.SystemAdminEmail); err != nil {
		return err
	}

	if err := a.Repo.SetActive(c.UserContext(), target.ID, false); err != nil {
		return err
	}

	a.invalidateLater(target.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteUser removes the target account permanently.
func (a *AccessController) DeleteUser(c *fiber.Ctx) error {
	caller, target, err := a.resolveRoleChange(c)
	if err != nil {
		return err
	}

	if err := CheckCriticalActionAllowed(caller, target, a.Config.SystemAdminEmail); err != nil {
		return err
	}

	if err := a.Repo.Delete(c.UserContext(), target.ID); err != nil {
		return err
	}

	a.invalidateLater(target.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

// resolveRoleChange loads the caller identity and the target account for
// the management endpoints.
func (a *AccessController) resolveRoleChange(c *fiber.Ctx) (*AuthUser, *User, error) {
	caller, err := AuthUserFromCtx(c)
	if err != nil {
		return nil, nil, err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, nil, BadRequestError("user id must be a valid uuid")
	}

	target, err := a.Repo.GetByID(c.UserContext(), id)
	if err != nil {
		return nil, nil, err
	}

	return caller, target, nil
}

func (a *AccessController) invalidateLater(subject uuid.UUID) {
	a.Tasks.Go("invalidate-identity", func(ctx context.Context) error {
		return a.Auther.Invalidate(ctx, subject)
	})
}
