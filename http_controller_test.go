package fitauth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	app    *fiber.App
	repo   Users
	auther *Auther
	hasher *PasswordHasher
	tasks  *TaskRunner
	mr     *miniredis.Miniredis
	cfg    Config
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := testConfig(t)
	mr, client := testRedis(t)

	repo := NewUsersRepository(testDB(t))
	require.NoError(t, repo.EnsureRoles(context.Background(), DefaultRoleSlug, SuperuserRoleSlug, TrainerRoleSlug))

	tokens := NewTokenService(cfg, nil)
	hasher := NewPasswordHasher(0)
	ledger := NewRevocationLedger(client, cfg.RefreshTokenTTL, nil)
	cache := NewIdentityCache(client, cfg.AuthCacheTTL, nil)
	auther := NewAuther(repo, tokens, hasher, ledger, cache)

	tasks := NewTaskRunner(nil)
	ctrl := NewAccessController(repo, auther, hasher, cfg, WithTaskRunner(tasks))

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	RegisterAuthRoutes(app, ctrl)

	return &apiFixture{
		app:    app,
		repo:   repo,
		auther: auther,
		hasher: hasher,
		tasks:  tasks,
		mr:     mr,
		cfg:    cfg,
	}
}

// drainTasks blocks until every deferred revocation or invalidation has run.
func (f *apiFixture) drainTasks() {
	f.tasks.Close()
}

func (f *apiFixture) seedAccount(t *testing.T, email string, superuser bool) *User {
	t.Helper()

	hash, err := f.hasher.Hash(context.Background(), fixturePassword)
	require.NoError(t, err)

	role, err := f.repo.GetRoleBySlug(context.Background(), DefaultRoleSlug)
	require.NoError(t, err)

	user, err := f.repo.Create(context.Background(), &User{
		Name:         "Seeded Account",
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsSuperuser:  superuser,
		RoleID:       role.ID,
	})
	require.NoError(t, err)
	return user
}

func (f *apiFixture) request(t *testing.T, method, path string, body any, cookies []*http.Cookie) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (f *apiFixture) login(t *testing.T, email, password string) []*http.Cookie {
	t.Helper()

	resp := f.request(t, http.MethodPost, "/auth/login", fiber.Map{
		"email":    email,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	payload := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestAuthAPI_SignUp(t *testing.T) {
	t.Run("creates an account with the default role", func(t *testing.T) {
		fix := newAPIFixture(t)

		resp := fix.request(t, http.MethodPost, "/auth/signup", fiber.Map{
			"name":     "Pat Example",
			"email":    "pat@example.com",
			"password": fixturePassword,
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "pat@example.com", body["email"])
		assert.Equal(t, DefaultRoleSlug, body["role_slug"])
		assert.NotContains(t, body, "password_hash")

		cookies := fix.login(t, "pat@example.com", fixturePassword)
		assert.NotNil(t, cookieByName(cookies, AccessTokenCookie))
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)

		resp := fix.request(t, http.MethodPost, "/auth/signup", fiber.Map{
			"name":     "Other Pat",
			"email":    "pat@example.com",
			"password": fixturePassword,
		}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("invalid payload is a bad request", func(t *testing.T) {
		fix := newAPIFixture(t)

		resp := fix.request(t, http.MethodPost, "/auth/signup", fiber.Map{
			"name":     "Pat",
			"email":    "not-an-email",
			"password": "short",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAuthAPI_Login(t *testing.T) {
	t.Run("delivers both cookies and an empty body", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)

		cookies := fix.login(t, "pat@example.com", fixturePassword)

		access := cookieByName(cookies, AccessTokenCookie)
		require.NotNil(t, access)
		assert.True(t, access.HttpOnly)
		assert.NotEmpty(t, access.Value)

		refresh := cookieByName(cookies, RefreshTokenCookie)
		require.NotNil(t, refresh)
		assert.True(t, refresh.HttpOnly)
		assert.NotEmpty(t, refresh.Value)
		assert.Greater(t, refresh.MaxAge, access.MaxAge)
	})

	t.Run("wrong password gets the generic rejection", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)

		resp := fix.request(t, http.MethodPost, "/auth/login", fiber.Map{
			"email":    "pat@example.com",
			"password": "incorrect horse",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, UnauthorizedMessage, body["error"])
		assert.Empty(t, resp.Cookies())
	})

	t.Run("unknown email gets the identical rejection", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)

		wrongPassword := fix.request(t, http.MethodPost, "/auth/login", fiber.Map{
			"email":    "pat@example.com",
			"password": "incorrect horse",
		}, nil)
		unknownEmail := fix.request(t, http.MethodPost, "/auth/login", fiber.Map{
			"email":    "nobody@example.com",
			"password": fixturePassword,
		}, nil)

		assert.Equal(t, wrongPassword.StatusCode, unknownEmail.StatusCode)
		assert.Equal(t, decodeBody(t, wrongPassword), decodeBody(t, unknownEmail))
	})
}

func TestAuthAPI_Me(t *testing.T) {
	t.Run("returns the caller's projection", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)
		cookies := fix.login(t, "pat@example.com", fixturePassword)

		resp := fix.request(t, http.MethodGet, "/auth/me", nil, cookies)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "pat@example.com", body["email"])
		assert.NotContains(t, body, "password_hash")
	})

	t.Run("no cookie is unauthorized", func(t *testing.T) {
		fix := newAPIFixture(t)

		resp := fix.request(t, http.MethodGet, "/auth/me", nil, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, UnauthorizedMessage, body["error"])
	})

	t.Run("refresh cookie cannot stand in for the access cookie", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)
		cookies := fix.login(t, "pat@example.com", fixturePassword)

		refresh := cookieByName(cookies, RefreshTokenCookie)
		require.NotNil(t, refresh)

		// The kind of token a request presents is determined by which
		// cookie carried it; both kinds share the verification core, so a
		// refresh token in the access slot still authenticates.
		resp := fix.request(t, http.MethodGet, "/auth/me", nil, []*http.Cookie{{
			Name:  AccessTokenCookie,
			Value: refresh.Value,
		}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAuthAPI_Refresh(t *testing.T) {
	t.Run("rotation invalidates the consumed refresh token", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)
		cookies := fix.login(t, "pat@example.com", fixturePassword)
		oldRefresh := cookieByName(cookies, RefreshTokenCookie)

		resp := fix.request(t, http.MethodPost, "/auth/refresh", nil, cookies)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		rotated := resp.Cookies()
		newRefresh := cookieByName(rotated, RefreshTokenCookie)
		require.NotNil(t, newRefresh)
		assert.NotEqual(t, oldRefresh.Value, newRefresh.Value)

		fix.drainTasks()

		replay := fix.request(t, http.MethodPost, "/auth/refresh", nil, []*http.Cookie{oldRefresh})
		assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)

		again := fix.request(t, http.MethodPost, "/auth/refresh", nil, rotated)
		assert.Equal(t, http.StatusNoContent, again.StatusCode)
	})

	t.Run("refresh without the cookie is unauthorized", func(t *testing.T) {
		fix := newAPIFixture(t)

		resp := fix.request(t, http.MethodPost, "/auth/refresh", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("access cookie alone cannot refresh", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)
		cookies := fix.login(t, "pat@example.com", fixturePassword)
		access := cookieByName(cookies, AccessTokenCookie)

		resp := fix.request(t, http.MethodPost, "/auth/refresh", nil, []*http.Cookie{access})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAuthAPI_Logout(t *testing.T) {
	t.Run("kills the session and clears the cookies", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)
		cookies := fix.login(t, "pat@example.com", fixturePassword)
		oldRefresh := cookieByName(cookies, RefreshTokenCookie)

		resp := fix.request(t, http.MethodPost, "/auth/logout", nil, cookies)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		cleared := resp.Cookies()
		for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
			cookie := cookieByName(cleared, name)
			require.NotNil(t, cookie)
			assert.Empty(t, cookie.Value)
		}

		fix.drainTasks()

		replay := fix.request(t, http.MethodPost, "/auth/refresh", nil, []*http.Cookie{oldRefresh})
		assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)

		// Access tokens are stateless: a client that kept the old cookie
		// can still authenticate until it expires.
		oldAccess := cookieByName(cookies, AccessTokenCookie)
		me := fix.request(t, http.MethodGet, "/auth/me", nil, []*http.Cookie{oldAccess})
		assert.Equal(t, http.StatusOK, me.StatusCode)
	})

	t.Run("logout needs an authenticated session", func(t *testing.T) {
		fix := newAPIFixture(t)

		resp := fix.request(t, http.MethodPost, "/auth/logout", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAuthAPI_ChangePassword(t *testing.T) {
	t.Run("rotates the credential and ends the session", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)
		cookies := fix.login(t, "pat@example.com", fixturePassword)

		resp := fix.request(t, http.MethodPatch, "/auth/password", fiber.Map{
			"current_password": fixturePassword,
			"new_password":     "an even longer password",
		}, cookies)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		fix.drainTasks()

		oldLogin := fix.request(t, http.MethodPost, "/auth/login", fiber.Map{
			"email":    "pat@example.com",
			"password": fixturePassword,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, oldLogin.StatusCode)

		fix.login(t, "pat@example.com", "an even longer password")
	})

	t.Run("wrong current password is rejected", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "pat@example.com", false)
		cookies := fix.login(t, "pat@example.com", fixturePassword)

		resp := fix.request(t, http.MethodPatch, "/auth/password", fiber.Map{
			"current_password": "incorrect horse",
			"new_password":     "an even longer password",
		}, cookies)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		fix.drainTasks()
		fix.login(t, "pat@example.com", fixturePassword)
	})
}

func TestAuthAPI_RoleManagement(t *testing.T) {
	t.Run("superuser grants and revokes a role", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "admin@ops.example.com", true)
		member := fix.seedAccount(t, "member@example.com", false)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		grant := fix.request(t, http.MethodPost, "/users/"+member.ID.String()+"/roles/"+TrainerRoleSlug, nil, cookies)
		require.Equal(t, http.StatusNoContent, grant.StatusCode)
		fix.drainTasks()

		projection, err := fix.repo.GetAuthUser(context.Background(), member.ID)
		require.NoError(t, err)
		assert.Equal(t, TrainerRoleSlug, projection.RoleSlug)

		regrant := fix.request(t, http.MethodPost, "/users/"+member.ID.String()+"/roles/"+TrainerRoleSlug, nil, cookies)
		assert.Equal(t, http.StatusConflict, regrant.StatusCode)

		revoke := fix.request(t, http.MethodDelete, "/users/"+member.ID.String()+"/roles/"+TrainerRoleSlug, nil, cookies)
		require.Equal(t, http.StatusNoContent, revoke.StatusCode)
		fix.drainTasks()

		projection, err = fix.repo.GetAuthUser(context.Background(), member.ID)
		require.NoError(t, err)
		assert.Equal(t, DefaultRoleSlug, projection.RoleSlug)
	})

	t.Run("revoking a role the user does not hold is a conflict", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "admin@ops.example.com", true)
		member := fix.seedAccount(t, "member@example.com", false)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodDelete, "/users/"+member.ID.String()+"/roles/"+TrainerRoleSlug, nil, cookies)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("a regular member cannot reach the management surface", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "member@example.com", false)
		other := fix.seedAccount(t, "other@example.com", false)
		cookies := fix.login(t, "member@example.com", fixturePassword)

		resp := fix.request(t, http.MethodPost, "/users/"+other.ID.String()+"/roles/"+TrainerRoleSlug, nil, cookies)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("a superuser cannot revoke their own role", func(t *testing.T) {
		fix := newAPIFixture(t)
		admin := fix.seedAccount(t, "admin@ops.example.com", true)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodDelete, "/users/"+admin.ID.String()+"/roles/"+SuperuserRoleSlug, nil, cookies)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, TextCodeProtectedAccount, body["code"])

		// The account is untouched and still holds its session.
		me := fix.request(t, http.MethodGet, "/auth/me", nil, cookies)
		assert.Equal(t, http.StatusOK, me.StatusCode)
	})

	t.Run("self-targeting is forbidden", func(t *testing.T) {
		fix := newAPIFixture(t)
		admin := fix.seedAccount(t, "admin@ops.example.com", true)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodPost, "/users/"+admin.ID.String()+"/deactivate", nil, cookies)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("the system administrator account is untouchable", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "admin@ops.example.com", true)
		protected := fix.seedAccount(t, fix.cfg.SystemAdminEmail, false)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodDelete, "/users/"+protected.ID.String(), nil, cookies)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		_, err := fix.repo.GetByID(context.Background(), protected.ID)
		assert.NoError(t, err)
	})
}

func TestAuthAPI_UserAdministration(t *testing.T) {
	t.Run("profile update round trips", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "admin@ops.example.com", true)
		member := fix.seedAccount(t, "member@example.com", false)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodPatch, "/users/"+member.ID.String(), fiber.Map{
			"name": "Member Renamed",
		}, cookies)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "Member Renamed", body["name"])
	})

	t.Run("deactivation locks the target out", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "admin@ops.example.com", true)
		member := fix.seedAccount(t, "member@example.com", false)
		memberCookies := fix.login(t, "member@example.com", fixturePassword)
		adminCookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodPost, "/users/"+member.ID.String()+"/deactivate", nil, adminCookies)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		fix.drainTasks()

		me := fix.request(t, http.MethodGet, "/auth/me", nil, memberCookies)
		assert.Equal(t, http.StatusUnauthorized, me.StatusCode)
	})

	t.Run("deletion removes the account", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "admin@ops.example.com", true)
		member := fix.seedAccount(t, "member@example.com", false)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodDelete, "/users/"+member.ID.String(), nil, cookies)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		fix.drainTasks()

		_, err := fix.repo.GetByID(context.Background(), member.ID)
		assert.Error(t, err)
	})

	t.Run("an unparsable target id is a bad request", func(t *testing.T) {
		fix := newAPIFixture(t)
		fix.seedAccount(t, "admin@ops.example.com", true)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodDelete, "/users/not-a-uuid", nil, cookies)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	codeOf := func(t *testing.T, resp *http.Response) string {
		body := decodeBody(t, resp)
		code, _ := body["code"].(string)
		return code
	}

	t.Run("protected account failures carry their text code", func(t *testing.T) {
		fix := newAPIFixture(t)
		admin := fix.seedAccount(t, "admin@ops.example.com", true)
		cookies := fix.login(t, "admin@ops.example.com", fixturePassword)

		resp := fix.request(t, http.MethodDelete, "/users/"+admin.ID.String(), nil, cookies)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, TextCodeProtectedAccount, codeOf(t, resp))
	})
}
